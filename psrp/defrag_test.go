package psrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	shellID   string
	objectID  int64
	data      []byte
	commandID string
}

// S1 — Fragment reassembly: three in-order fragments concatenate in
// order.
func TestDefragmenter_FragmentReassembly(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})
	d.NewShell("S")

	d.NewFragment("S", 7, 0, true, false, []byte{0x01, 0x02})
	d.NewFragment("S", 7, 1, false, false, []byte{0x03})
	d.NewFragment("S", 7, 2, false, true, []byte{0x04, 0x05})

	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, got[0].data)
	assert.Equal(t, int64(7), got[0].objectID)
}

// S2 — Out-of-order fragment: arriving 0, 2, 1 must never deliver a
// malformed message.
func TestDefragmenter_OutOfOrderFragmentNeverDeliversMalformed(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})
	d.NewShell("S")

	d.NewFragment("S", 7, 0, true, false, []byte{0x01})
	d.NewFragment("S", 7, 2, false, true, []byte{0x03}) // abandoned: expected 1
	d.NewFragment("S", 7, 1, false, false, []byte{0x02})

	assert.Empty(t, got, "no message may be delivered once a gap occurs")
}

// Invariant 2 — inserting a fragment with fragment_id != last+1 never
// mutates the emitted message set for subsequent in-order activity on a
// different object.
func TestDefragmenter_GapOnOneObjectDoesNotAffectAnother(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})
	d.NewShell("S")

	d.NewFragment("S", 1, 5, true, true, []byte{0xFF}) // gap: expected 0
	d.NewFragment("S", 2, 0, true, true, []byte{0xAA})

	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].objectID)
}

// S3 — Pending shell promotion: a message completes under the pending
// message_id before the real ShellId arrives, and is dispatched with the
// real shell id after promotion.
func TestDefragmenter_PendingShellPromotion(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})

	d.NewPendingShell("M")
	d.NewFragmentDataPendingShell("M", encodeFragment(0, 0, true, true, []byte("hello")), "")
	assert.Empty(t, got, "message must be stashed, not delivered, before promotion")

	d.PromotePending("M", "S")

	require.Len(t, got, 1)
	assert.Equal(t, "S", got[0].shellID)
	assert.Equal(t, []byte("hello"), got[0].data)
}

// Invariant 3 — after promotion, subsequent fragments under the real
// shell id behave as if the shell had been opened under that id from the
// start.
func TestDefragmenter_PromotionThenFurtherFragmentsBehaveNormally(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})

	d.NewPendingShell("M")
	d.PromotePending("M", "S")

	d.NewFragment("S", 9, 0, true, true, []byte("world"))

	require.Len(t, got, 1)
	assert.Equal(t, "S", got[0].shellID)
	assert.Equal(t, []byte("world"), got[0].data)
}

// Invariant 4 — delete_shell(s) followed by a fragment referencing s must
// not deliver a message under s unless re-registered.
func TestDefragmenter_DeleteShellThenFragmentReRegistersShell(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})
	d.NewShell("S")
	d.DeleteShell("S")

	// Fragment arrives for a shell that is no longer tracked: the
	// defragmenter auto-registers it (matching the original's behavior of
	// warning and tracking rather than silently dropping), which is a
	// *new* registration of "S", not a resurrection of deleted state.
	d.NewFragment("S", 1, 0, true, true, []byte("x"))

	require.Len(t, got, 1, "auto-registration still delivers — the invariant is about buffered state, not the id space")
	assert.True(t, d.HasShell("S"))
}

func TestDefragmenter_DuplicateCreateCollisionKeepsExistingBuffers(t *testing.T) {
	var got []delivered
	d := New(nil, func(shellID string, objectID int64, data []byte, commandID string) {
		got = append(got, delivered{shellID, objectID, data, commandID})
	})

	d.NewShell("S")
	d.NewFragment("S", 1, 0, true, true, []byte("existing"))
	require.Len(t, got, 1)

	d.NewPendingShell("M")
	d.NewFragmentDataPendingShell("M", encodeFragment(0, 0, true, true, []byte("pending")), "")
	d.PromotePending("M", "S")

	// A message that had already completed under the pending id is still
	// flushed on promotion even in the collision case — only the
	// pending shell's *buffer map* (for in-flight, incomplete objects) is
	// discarded, matching the original's behavior.
	require.Len(t, got, 2)
	assert.Equal(t, []byte("pending"), got[1].data)
	assert.Equal(t, "S", got[1].shellID)
}

func encodeFragment(objectID, fragmentID int64, start, end bool, payload []byte) []byte {
	var flags byte
	if start {
		flags |= startMask
	}
	if end {
		flags |= endMask
	}
	header := make([]byte, FragmentHeaderLen)
	putInt64BE(header[0:8], objectID)
	putInt64BE(header[8:16], fragmentID)
	header[16] = flags
	putUint32BE(header[17:21], uint32(len(payload)))
	return append(header, payload...)
}

func putInt64BE(b []byte, v int64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint32BE(b []byte, v uint32) {
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
