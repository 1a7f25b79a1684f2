package trace

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned by Session implementations on
// platforms that cannot subscribe to ETW sessions.
var ErrUnsupportedPlatform = errors.New("trace: ETW session capture is only supported on windows")

// Session is the OS trace subscription boundary. It is the out-of-scope
// external collaborator named in spec §1/§6: implementations deliver
// parsed Event values to the callback passed at construction, but the
// actual provider enablement (StartTraceW/EnableTraceEx2/ProcessTrace) is
// not specified here.
type Session interface {
	// Start begins the trace session. It returns once the session is
	// enabled and dispatching events to the configured callback, or ctx is
	// canceled first.
	Start(ctx context.Context) error

	// Stop ends the trace session. Cancellation is cooperative: no
	// in-flight event is guaranteed to finish processing before Stop
	// returns (spec §5 "Cancellation").
	Stop() error
}

// Provider identifies one of the two ETW providers this system consumes,
// by GUID, level and keyword mask, per spec §6.
type Provider struct {
	Name        string
	GUID        string
	Level       uint8
	AllKeywords uint64
	AnyKeywords uint64
}

// WinRMProvider is the Microsoft-Windows-WinRM provider (spec §6).
var WinRMProvider = Provider{
	Name:        "Microsoft-Windows-WinRM",
	GUID:        "{A7975C8F-AC13-49F1-87DA-5A984A4AB417}",
	Level:       4,
	AllKeywords: 0x2000000000000005,
}

// PowerShellProvider is the Microsoft-Windows-PowerShell provider (spec §6).
var PowerShellProvider = Provider{
	Name:        "Microsoft-Windows-PowerShell",
	GUID:        "{A0C1853B-5C40-4B15-8766-3CF1C58F985A}",
	Level:       5,
	AnyKeywords: 0x4000000000000008 | 0x4000000000000100,
}

// ExcludeSelfPIDs is a pluggable process-enumeration boundary, matching the
// original's get_svchost_pids() helper: production code fills this with an
// OS-specific process enumerator, tests fill it with a fixed list.
type ExcludeSelfPIDs func() ([]uint32, error)
