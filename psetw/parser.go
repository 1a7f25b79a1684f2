// Package psetw parses Microsoft-Windows-PowerShell provider trace events,
// grounded on PowerShellETWParser in the original implementation's etw.py.
package psetw

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/smnsjas/go-psrptrace/trace"
)

const (
	keywordFragment       = 0x4000000000000008
	keywordShellContext   = 0x4000000000000100
	fragmentEventLevel    = 5
	descCreatingSession   = "Request %1. Creating a server remote session."
	descShellContext      = "Shell Context %1. Request Id %2"
	descOperationComplete = "Reporting operation complete for request: %1"
)

// FragmentFunc is invoked for every PSRP fragment event once its ActivityId
// has been resolved to a ShellId.
type FragmentFunc func(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte)

// Parser classifies Microsoft-Windows-PowerShell trace events by keyword and
// level, maintains the ActivityId→ShellId context table built from
// "shell context" events, and emits fragment tuples for the defragmenter.
//
// Per spec §5, Parser guards its state with its own mutex (matching the
// original's explicit threading.Lock). The mutex is held while onFragment
// runs, which is what serializes the unlocked psrp.Defragmenter
// downstream on this ingress path.
type Parser struct {
	mu     sync.Mutex
	logger *slog.Logger

	onFragment FragmentFunc

	shells                map[string]bool
	activityShellContexts map[string]string
}

// New creates a Parser that calls onFragment for each resolved PSRP
// fragment event.
func New(logger *slog.Logger, onFragment FragmentFunc) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:                logger.With("component", "psetw"),
		onFragment:            onFragment,
		shells:                make(map[string]bool),
		activityShellContexts: make(map[string]string),
	}
}

// NewEvent classifies evt by its (Keyword, Level) pair and routes it to the
// fragment or shell-context handler, matching new_event in the original.
// Any panic while handling the event is recovered and logged, not
// propagated, per spec §7.
func (p *Parser) NewEvent(evt trace.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("PowerShellETWParser error", "event", evt, "panic", r)
		}
	}()

	switch {
	case evt.Header.Descriptor.Keyword == keywordFragment && evt.Header.Descriptor.Level == fragmentEventLevel:
		p.psrpFragEvent(evt)
	case evt.Header.Descriptor.Keyword == keywordShellContext:
		p.shellContextEvent(evt)
	}
}

func (p *Parser) psrpFragEvent(evt trace.Event) {
	activityID := evt.Header.ActivityID

	objectID, _ := evt.Int64("ObjectId")
	fragmentID, _ := evt.Int64("FragmentId")
	start, _ := evt.Bool("sFlag")
	end, _ := evt.Bool("eFlag")
	length, _ := evt.Uint64("FragmentLength")
	payload, _ := evt.Bytes("FragmentPayload")

	shellID, ok := p.activityShellContexts[activityID]
	if !ok {
		p.logger.Error("unable to identify shell context for PSRP fragment", "activity_id", activityID)
		return
	}
	p.onFragment(shellID, objectID, fragmentID, start, end, length, payload)
}

// shellContextEvent classifies a shell-context event by its Description
// text, matching the three patterns the original inspects. Command ids
// could also be recovered here (request ids correlate to commands), but
// are not needed once a pipeline's fragments flow through ShellId alone.
func (p *Parser) shellContextEvent(evt trace.Event) {
	if evt.Header.ActivityID == "" {
		return
	}
	activityID := evt.Header.ActivityID
	description, _ := evt.String("Description")

	switch {
	case strings.Contains(description, descCreatingSession):
		shellID, _ := evt.String("param1")
		p.logger.Debug("tracking new shell", "shell_id", shellID, "activity_id", activityID)
		p.trackShell(shellID)
		p.activityShellContexts[activityID] = shellID

	case strings.Contains(description, descShellContext):
		shellID, _ := evt.String("param1")
		if !p.shells[shellID] {
			p.logger.Debug("tracking new shell for which we missed the shell creation event", "shell_id", shellID)
			p.trackShell(shellID)
		}
		if _, exists := p.activityShellContexts[activityID]; !exists {
			p.logger.Debug("tracking shell against activity id", "shell_id", shellID, "activity_id", activityID)
			p.activityShellContexts[activityID] = shellID
		}

	case strings.Contains(description, descOperationComplete):
		requestID, _ := evt.String("param1")
		if p.shells[requestID] {
			p.logger.Debug("shell closed, removing tracking data", "shell_id", requestID)
			delete(p.shells, requestID)
			for actID, shellID := range p.activityShellContexts {
				if shellID == requestID {
					delete(p.activityShellContexts, actID)
				}
			}
		}
	}
}

func (p *Parser) trackShell(shellID string) {
	if shellID != "" {
		p.shells[shellID] = true
	}
}
