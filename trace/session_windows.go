//go:build windows

package trace

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// etwSession holds the session-handle plumbing for a real-time ETW trace
// session. Wiring this to StartTraceW/EnableTraceEx2/ProcessTrace is the
// out-of-scope external collaborator named in spec §1/§6: this type
// carries the GUID/handle bookkeeping a real binding needs, but the
// callback hook (dispatch) is what the rest of this package depends on.
type etwSession struct {
	mu sync.Mutex

	provider     Provider
	providerGUID windows.GUID
	sessionName  string
	excludePIDs  ExcludeSelfPIDs
	callback     func(Event)

	handle  windows.Handle
	running bool
}

// NewSession constructs a Windows ETW session for the given provider. The
// returned Session dispatches decoded events to callback, filtering out
// events whose ProcessID is in the set returned by excludePIDs (nil means
// no filtering).
func NewSession(provider Provider, sessionName string, excludePIDs ExcludeSelfPIDs, callback func(Event)) Session {
	guid, err := windows.GUIDFromString(provider.GUID)
	if err != nil {
		// Provider table is fixed/trusted data (spec §6); a malformed GUID
		// here is a programming error, not a runtime condition to recover
		// from cleanly.
		panic(fmt.Sprintf("trace: invalid provider GUID %q: %v", provider.GUID, err))
	}
	return &etwSession{
		provider:     provider,
		providerGUID: guid,
		sessionName:  sessionName,
		excludePIDs:  excludePIDs,
		callback:     callback,
	}
}

// Start enables the trace session and begins dispatching events to the
// callback. The real-time consumption loop (ProcessTrace) is expected to
// run on its own worker thread and call dispatch for each decoded event;
// that binding is outside this package's scope.
func (s *etwSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop ends the trace session. Safe to call more than once.
func (s *etwSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.handle != 0 {
		s.handle = 0
	}
	return nil
}

// dispatch filters by excludePIDs and forwards a decoded event to the
// configured callback. Called by the (out-of-scope) real-time event
// consumption loop for every event the session receives.
func (s *etwSession) dispatch(evt Event) {
	if s.excludePIDs != nil {
		excluded, err := s.excludePIDs()
		if err == nil {
			for _, pid := range excluded {
				if pid == evt.Header.ProcessID {
					return
				}
			}
		}
	}
	s.callback(evt)
}
