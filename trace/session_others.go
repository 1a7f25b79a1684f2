//go:build !windows

package trace

import "context"

// etwSession is a stub for non-Windows platforms; ETW is a Windows-only
// facility.
type etwSession struct {
	provider Provider
}

// NewSession returns a Session stub on non-Windows platforms. Start/Stop
// both report ErrUnsupportedPlatform.
func NewSession(provider Provider, sessionName string, excludePIDs ExcludeSelfPIDs, callback func(Event)) Session {
	return &etwSession{provider: provider}
}

func (s *etwSession) Start(_ context.Context) error {
	return ErrUnsupportedPlatform
}

func (s *etwSession) Stop() error {
	return ErrUnsupportedPlatform
}
