// Package soap reassembles multi-chunk SOAP documents delivered as ordered
// trace events under the WinRM provider, grounded on SoapDefragmenter in
// the original implementation's winrm.py.
package soap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrOutOfOrderChunk is returned (and logged, never propagated past
// HandleEvent) when a chunk index does not follow the last one seen for
// its key.
var ErrOutOfOrderChunk = errors.New("soap: out-of-order chunk")

// key identifies one in-flight SOAP assembly, matching spec §3's
// SoapAssembly key (ActivityId, Pid, Tid).
type key struct {
	ActivityID string
	PID        uint32
	TID        uint32
}

// assembly is the partial document accumulated for one key.
type assembly struct {
	totalChunks uint32
	lastChunk   uint32
	text        string
}

// Defragmenter reassembles SOAP documents delivered in chunked trace
// events. It may be fed from multiple trace threads; event intake is
// serialized with an exclusive lock spanning the whole critical section
// (parse, append, possibly deliver), per spec §4.1/§5.
type Defragmenter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	partial map[key]*assembly

	// onComplete is invoked with (activityID, pid, tid, soap) once a
	// document's final chunk arrives. It is called with the defragmenter's
	// lock held (spec §5): it must not block on anything but logging.
	onComplete func(activityID string, pid, tid uint32, soapDoc string)
}

// New creates a Defragmenter that calls onComplete for each fully
// reassembled SOAP document.
func New(logger *slog.Logger, onComplete func(activityID string, pid, tid uint32, soapDoc string)) *Defragmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Defragmenter{
		logger:     logger.With("component", "soap"),
		partial:    make(map[key]*assembly),
		onComplete: onComplete,
	}
}

// ChunkEvent is the subset of a Microsoft-Windows-WinRM trace event a
// single SOAP chunk carries (spec §4.1).
type ChunkEvent struct {
	ActivityID  string // sentinel "-1" when the event carries none
	PID         uint32
	TID         uint32
	TotalChunks uint32
	Index       uint32 // 1-based
	SoapText    string
}

// HandleEvent processes one chunk event. It never panics outward: any
// internal error abandons the in-flight assembly for this key and is
// logged, matching spec §7 ("defragment violation ... discard the
// offending assembly; do not propagate").
func (d *Defragmenter) HandleEvent(evt ChunkEvent) {
	activityID := evt.ActivityID
	if activityID == "" {
		activityID = "-1"
	}
	k := key{ActivityID: activityID, PID: evt.PID, TID: evt.TID}

	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("soap defragment panic, assembly abandoned",
				"activity_id", k.ActivityID, "pid", k.PID, "tid", k.TID, "panic", r)
			delete(d.partial, k)
		}
	}()

	if err := d.handleLocked(k, evt); err != nil {
		d.logger.Error("soap defragment error, assembly abandoned",
			"activity_id", k.ActivityID, "pid", k.PID, "tid", k.TID, "error", err)
		delete(d.partial, k)
	}
}

func (d *Defragmenter) handleLocked(k key, evt ChunkEvent) error {
	a, ok := d.partial[k]
	if !ok {
		a = &assembly{totalChunks: evt.TotalChunks, lastChunk: 0}
		d.partial[k] = a
	}

	if evt.Index != a.lastChunk+1 {
		return fmt.Errorf("%w: got index %d, expected %d", ErrOutOfOrderChunk, evt.Index, a.lastChunk+1)
	}

	d.logger.Debug("processing WS-Man SOAP chunk",
		"activity_id", k.ActivityID, "pid", k.PID, "tid", k.TID,
		"chunk", evt.Index, "total", a.totalChunks)

	a.lastChunk++
	a.text += evt.SoapText

	if evt.Index == a.totalChunks {
		d.logger.Info("WS-Man SOAP reassembled",
			"activity_id", k.ActivityID, "pid", k.PID, "tid", k.TID)
		d.onComplete(k.ActivityID, k.PID, k.TID, a.text)
		delete(d.partial, k)
	}
	return nil
}

// Pending returns the number of in-flight assemblies. Exposed for tests
// and diagnostics only.
func (d *Defragmenter) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.partial)
}
