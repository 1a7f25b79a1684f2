package soap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 — SOAP reassembly: three chunks under one key reassemble into one
// document and the assembly table is empty afterward.
func TestDefragmenter_Reassembly(t *testing.T) {
	var got []string
	d := New(nil, func(activityID string, pid, tid uint32, soapDoc string) {
		got = append(got, soapDoc)
	})

	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 100, TID: 200, TotalChunks: 3, Index: 1, SoapText: "<a>"})
	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 100, TID: 200, TotalChunks: 3, Index: 2, SoapText: "hi"})
	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 100, TID: 200, TotalChunks: 3, Index: 3, SoapText: "</a>"})

	require.Len(t, got, 1)
	assert.Equal(t, "<a>hi</a>", got[0])
	assert.Equal(t, 0, d.Pending())
}

// Invariant 5 — distinct (activity, pid, tid) keys reassemble independently
// even when interleaved.
func TestDefragmenter_InterleavedKeysAreIndependent(t *testing.T) {
	var got []string
	d := New(nil, func(activityID string, pid, tid uint32, soapDoc string) {
		got = append(got, soapDoc)
	})

	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 1, TID: 1, TotalChunks: 2, Index: 1, SoapText: "a1"})
	d.HandleEvent(ChunkEvent{ActivityID: "B", PID: 2, TID: 2, TotalChunks: 2, Index: 1, SoapText: "b1"})
	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 1, TID: 1, TotalChunks: 2, Index: 2, SoapText: "a2"})
	d.HandleEvent(ChunkEvent{ActivityID: "B", PID: 2, TID: 2, TotalChunks: 2, Index: 2, SoapText: "b2"})

	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"a1a2", "b1b2"}, got)
	assert.Equal(t, 0, d.Pending())
}

// Out-of-order chunk abandons the assembly; no document is ever delivered
// for that key.
func TestDefragmenter_OutOfOrderChunkAbandonsAssembly(t *testing.T) {
	delivered := false
	d := New(nil, func(activityID string, pid, tid uint32, soapDoc string) {
		delivered = true
	})

	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 1, TID: 1, TotalChunks: 3, Index: 1, SoapText: "<a>"})
	d.HandleEvent(ChunkEvent{ActivityID: "A", PID: 1, TID: 1, TotalChunks: 3, Index: 3, SoapText: "</a>"})

	assert.False(t, delivered)
	assert.Equal(t, 0, d.Pending(), "abandoned assembly must be removed, not left dangling")
}

func TestDefragmenter_MissingActivityIDDefaultsToSentinel(t *testing.T) {
	var got []string
	d := New(nil, func(activityID string, pid, tid uint32, soapDoc string) {
		got = append(got, activityID)
	})

	d.HandleEvent(ChunkEvent{PID: 1, TID: 1, TotalChunks: 1, Index: 1, SoapText: "x"})

	require.Len(t, got, 1)
	assert.Equal(t, "-1", got[0])
}
