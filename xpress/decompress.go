// Package xpress implements the block-framing format PSRP receive streams
// use around XPRESS-compressed data, grounded on _decompress_stream_data
// in the original implementation's winrm.py.
package xpress

import "errors"

// ErrNoDecompressor is the error StreamDecompressor.Decompress logs when it
// meets a compressed block and has no Decompressor bound, matching spec
// §7's "missing decompressor" case: the pipeline logs and continues, only
// the affected stream's compressed blocks are lost. Decompress does not
// return it.
var ErrNoDecompressor = errors.New("xpress: no decompression primitive configured")

// Decompressor is the external LZ-class decompression primitive XPRESS
// blocks are handed to. Production code binds this to the real XPRESS
// decoder; tests stub it with an identity function and with a failure
// injector (spec §9).
type Decompressor interface {
	// Decompress expands input into a buffer of exactly expectedLen bytes.
	Decompress(input []byte, expectedLen int) ([]byte, error)
}

// DecompressorFunc adapts a plain function to a Decompressor.
type DecompressorFunc func(input []byte, expectedLen int) ([]byte, error)

// Decompress implements Decompressor.
func (f DecompressorFunc) Decompress(input []byte, expectedLen int) ([]byte, error) {
	return f(input, expectedLen)
}
