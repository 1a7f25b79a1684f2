package xpress

import (
	"encoding/binary"
	"log/slog"
)

// StreamDecompressor implements the XPRESS stream block-framing loop (spec
// §4.5/§6): a repeated 4-byte little-endian header (uncompressed_size u16,
// compressed_size u16, both stored as n-1 on the wire), followed by the
// block body. A verbatim block (uncompressed == compressed) is appended as
// is; otherwise the bound Decompressor is invoked.
//
// The decompressor handle lives for the program's lifetime and is reused
// across calls (spec §5 "Resource lifetime").
type StreamDecompressor struct {
	decompressor Decompressor
	logger       *slog.Logger
}

// NewStreamDecompressor creates a StreamDecompressor bound to decompressor.
// A nil decompressor is allowed: Decompress still handles verbatim blocks,
// but a compressed block logs ErrNoDecompressor and is skipped (spec §7).
func NewStreamDecompressor(decompressor Decompressor, logger *slog.Logger) *StreamDecompressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamDecompressor{decompressor: decompressor, logger: logger.With("component", "xpress")}
}

// Decompress expands every block in blob and returns the concatenation of
// their decompressed forms. A block that fails to decompress does not
// abort the stream: whatever the decompressor produced (possibly nothing)
// is appended, the error is logged, and framing continues with the next
// block (spec §4.5).
func (s *StreamDecompressor) Decompress(blob []byte) []byte {
	out := make([]byte, 0, len(blob))
	for len(blob) >= 4 {
		uncompressedSize := int(binary.LittleEndian.Uint16(blob[0:2])) + 1
		compressedSize := int(binary.LittleEndian.Uint16(blob[2:4])) + 1
		blob = blob[4:]

		if compressedSize > len(blob) {
			s.logger.Error("xpress block header claims more data than remains in stream, truncating",
				"compressed_size", compressedSize, "remaining", len(blob))
			compressedSize = len(blob)
		}
		block := blob[:compressedSize]
		blob = blob[compressedSize:]

		if uncompressedSize == compressedSize {
			out = append(out, block...)
			continue
		}

		if s.decompressor == nil {
			s.logger.Error(ErrNoDecompressor.Error())
			continue
		}

		decoded, err := s.decompressor.Decompress(block, uncompressedSize)
		if err != nil {
			s.logger.Error("xpress decompression failed, appending partial result and continuing",
				"error", err)
		}
		out = append(out, decoded...)
	}
	return out
}
