// Package trace defines the event shape handed to the pipeline by the
// out-of-scope OS trace subscription, and the session boundary that
// produces it.
//
// Nothing in this package decodes WinRM or PowerShell semantics; it only
// describes the envelope every ETW event arrives in, mirroring the `event`
// dict consumed throughout the original Python implementation's
// winrm.py/etw.py/psrp.py.
package trace

import "fmt"

// EventDescriptor carries the keyword/level pair ETW uses to classify an
// event without parsing its payload.
type EventDescriptor struct {
	Keyword uint64
	Level   uint8
}

// EventHeader is the common envelope every trace event carries, regardless
// of provider.
type EventHeader struct {
	// ActivityID correlates related events. Absent for some WinRM events;
	// callers that need a key default it to the sentinel "-1" (see
	// soap.Defragmenter).
	ActivityID string
	ProcessID  uint32
	ThreadID   uint32
	Descriptor EventDescriptor
}

// Event is one parsed trace event. Fields holds the provider-specific
// payload, keyed by the field names named in spec §4.1/§4.6
// ("totalChunks", "index", "SoapDocument", "ObjectId", "FragmentId",
// "sFlag", "eFlag", "FragmentLength", "FragmentPayload", "Description",
// "param1".."param4", ...). A map keeps this package decoupled from any
// particular ETW manifest/binding library, which is the out-of-scope
// external collaborator named in spec §1.
type Event struct {
	Header EventHeader
	Fields map[string]any
}

// String returns a field as a string, or ok=false if the field is absent.
// Non-string values are formatted with their String method or %v.
func (e Event) String(field string) (string, bool) {
	v, present := e.Fields[field]
	if !present {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// Uint64 returns a uint64 value for a field, or ok=false if absent or not
// a numeric type.
func (e Event) Uint64(field string) (uint64, bool) {
	v, present := e.Fields[field]
	if !present {
		return 0, false
	}
	switch t := v.(type) {
	case uint64:
		return t, true
	case uint32:
		return uint64(t), true
	case int:
		return uint64(t), true
	case int64:
		return uint64(t), true
	default:
		return 0, false
	}
}

// Int64 returns an int64 value for a field, or ok=false if absent or not a
// numeric type.
func (e Event) Int64(field string) (int64, bool) {
	v, present := e.Fields[field]
	if !present {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	default:
		return 0, false
	}
}

// Bool returns a bool value for a field, or ok=false if absent or not a
// boolean type.
func (e Event) Bool(field string) (bool, bool) {
	v, present := e.Fields[field]
	if !present {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Bytes returns a []byte value for a field, or ok=false if absent or not a
// byte slice.
func (e Event) Bytes(field string) ([]byte, bool) {
	v, present := e.Fields[field]
	if !present {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
