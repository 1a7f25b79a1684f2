package psrp

import (
	"encoding/binary"
	"fmt"
)

// FragmentHeaderLen is the size in bytes of the PSRP fragment header
// (spec §3/§6): object_id(8) | fragment_id(8) | flags(1) | length(4).
const FragmentHeaderLen = 21

const (
	startMask = 1
	endMask   = 2
)

// Fragment is a decoded PsrpFragment wire tuple (spec §3).
type Fragment struct {
	ObjectID   int64
	FragmentID int64
	Start      bool
	End        bool
	Payload    []byte
}

// ParseFragments decodes a buffer of one or more concatenated 21-byte-
// header fragments (as carried in a WS-Man Command/Receive stream),
// returning them in wire order.
func ParseFragments(data []byte) ([]Fragment, error) {
	var out []Fragment
	offset := 0
	for offset < len(data) {
		if offset+FragmentHeaderLen > len(data) {
			return out, fmt.Errorf("psrp: truncated fragment header at offset %d", offset)
		}
		objectID := int64(binary.BigEndian.Uint64(data[offset : offset+8]))
		fragmentID := int64(binary.BigEndian.Uint64(data[offset+8 : offset+16]))
		flags := data[offset+16]
		length := binary.BigEndian.Uint32(data[offset+17 : offset+21])

		dataStart := offset + FragmentHeaderLen
		dataEnd := dataStart + int(length)
		if dataEnd > len(data) {
			return out, fmt.Errorf("psrp: fragment payload length %d exceeds remaining buffer at offset %d", length, offset)
		}

		out = append(out, Fragment{
			ObjectID:   objectID,
			FragmentID: fragmentID,
			Start:      flags&startMask != 0,
			End:        flags&endMask != 0,
			Payload:    data[dataStart:dataEnd],
		})
		offset = dataEnd
	}
	return out, nil
}
