package psrp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// MessageHeaderLen is the size in bytes of the fixed PSRP message header
// (spec §3/§6): destination(4) | message_type(4) | runspace_id(16) |
// pipeline_id(16), all little-endian.
const MessageHeaderLen = 40

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Message is a decoded PsrpMessage (spec §3).
type Message struct {
	Destination uint32
	Type        MessageType
	RunspaceID  uuid.UUID
	PipelineID  uuid.UUID
	Text        string
}

// DecodeMessage parses a completed PSRP object (the bytes a
// Defragmenter delivered) into a typed Message.
func DecodeMessage(object []byte) (Message, error) {
	if len(object) < MessageHeaderLen {
		return Message{}, fmt.Errorf("psrp: message too short: %d bytes, need at least %d", len(object), MessageHeaderLen)
	}

	destination := binary.LittleEndian.Uint32(object[0:4])
	msgType := binary.LittleEndian.Uint32(object[4:8])

	runspaceID, err := uuid.FromBytes(reverseGUIDBytes(object[8:24]))
	if err != nil {
		return Message{}, fmt.Errorf("psrp: decode runspace_id: %w", err)
	}
	pipelineID, err := uuid.FromBytes(reverseGUIDBytes(object[24:40]))
	if err != nil {
		return Message{}, fmt.Errorf("psrp: decode pipeline_id: %w", err)
	}

	body := bytes.TrimPrefix(object[MessageHeaderLen:], utf8BOM)

	return Message{
		Destination: destination,
		Type:        MessageType(msgType),
		RunspaceID:  runspaceID,
		PipelineID:  pipelineID,
		Text:        string(body),
	}, nil
}

// reverseGUIDBytes converts a 16-byte little-endian GUID (the .NET/Windows
// on-wire byte order PSRP uses) into the big-endian byte order
// github.com/google/uuid expects from FromBytes.
func reverseGUIDBytes(b []byte) []byte {
	out := make([]byte, 16)
	// Data1 (4 bytes), Data2 (2 bytes), Data3 (2 bytes) are little-endian
	// on the wire; Data4 (8 bytes) is already in byte order.
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:16])
	return out
}
