package psetw

import (
	"testing"

	"github.com/smnsjas/go-psrptrace/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellContextEvent(activityID, description string, params ...string) trace.Event {
	fields := map[string]any{"Description": description}
	for i, p := range params {
		fields[paramName(i+1)] = p
	}
	return trace.Event{
		Header: trace.EventHeader{
			ActivityID: activityID,
			Descriptor: trace.EventDescriptor{Keyword: keywordShellContext, Level: 4},
		},
		Fields: fields,
	}
}

func paramName(i int) string {
	switch i {
	case 1:
		return "param1"
	case 2:
		return "param2"
	default:
		return "param?"
	}
}

func fragmentEvent(activityID string, objectID, fragmentID int64, start, end bool, payload []byte) trace.Event {
	return trace.Event{
		Header: trace.EventHeader{
			ActivityID: activityID,
			Descriptor: trace.EventDescriptor{Keyword: keywordFragment, Level: fragmentEventLevel},
		},
		Fields: map[string]any{
			"ObjectId":        objectID,
			"FragmentId":      fragmentID,
			"sFlag":           start,
			"eFlag":           end,
			"FragmentLength":  uint64(len(payload)),
			"FragmentPayload": payload,
		},
	}
}

func TestParser_ShellCreationThenFragmentResolvesShellID(t *testing.T) {
	var got []string
	p := New(nil, func(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte) {
		got = append(got, shellID)
	})

	p.NewEvent(shellContextEvent("act1", descCreatingSession, "S1", "user"))
	p.NewEvent(fragmentEvent("act1", 1, 0, true, true, []byte{0x01}))

	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0])
}

func TestParser_FragmentWithUnknownActivityIsDropped(t *testing.T) {
	var got []string
	p := New(nil, func(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte) {
		got = append(got, shellID)
	})

	p.NewEvent(fragmentEvent("unknown-activity", 1, 0, true, true, []byte{0x01}))
	assert.Empty(t, got)
}

func TestParser_ShellContextEventTracksShellWithMissedCreation(t *testing.T) {
	var got []string
	p := New(nil, func(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte) {
		got = append(got, shellID)
	})

	p.NewEvent(shellContextEvent("act1", descShellContext, "S1"))
	p.NewEvent(fragmentEvent("act1", 1, 0, true, true, []byte{0x01}))

	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0])
}

func TestParser_OperationCompleteRemovesShellTracking(t *testing.T) {
	var got []string
	p := New(nil, func(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte) {
		got = append(got, shellID)
	})

	p.NewEvent(shellContextEvent("act1", descCreatingSession, "S1", "user"))
	p.NewEvent(shellContextEvent("act1", descOperationComplete, "S1"))
	p.NewEvent(fragmentEvent("act1", 1, 0, true, true, []byte{0x01}))

	assert.Empty(t, got, "fragment events after close must not resolve a shell id that was removed")
}
