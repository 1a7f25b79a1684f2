package wsman

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"

	"github.com/smnsjas/go-psrptrace/psrp"
	"github.com/smnsjas/go-psrptrace/xpress"
)

// Dispatcher reassembles WS-Management request/response pairs into shell,
// command and receive lifecycle events and feeds the PSRP fragments they
// carry to a psrp.Defragmenter, grounded on WSManPS in the original
// implementation's winrm.py.
//
// Dispatcher is not internally locked: calls to HandleSOAP must be
// serialized by the caller. In internal/pipeline it is invoked as
// soap.Defragmenter's completion callback, with that defragmenter's mutex
// held; there is no separate actor goroutine.
type Dispatcher struct {
	logger       *slog.Logger
	defrag       *psrp.Defragmenter
	decompressor *xpress.StreamDecompressor

	// createMsgs tracks in-flight Create requests by MessageID: the
	// pending shell identifier until CreateResponse promotes it.
	createMsgs map[string]bool

	// deleteMsgs, commandMsgs and receiveMsgs map a request's MessageID
	// to the ShellId it was issued against, so the matching *Response
	// (correlated only by RelatesTo) can be resolved back to a shell.
	deleteMsgs  map[string]string
	commandMsgs map[string]string
	receiveMsgs map[string]string

	// commands maps a CommandId (learned from CommandResponse) back to
	// the ShellId it runs in.
	commands map[string]string
}

// New creates a Dispatcher that feeds reassembled PSRP fragments to defrag,
// decompressing XPRESS-framed stream data with decompressor (may be nil —
// see xpress.NewStreamDecompressor).
func New(logger *slog.Logger, defrag *psrp.Defragmenter, decompressor *xpress.StreamDecompressor) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:       logger.With("component", "wsman.dispatcher"),
		defrag:       defrag,
		decompressor: decompressor,
		createMsgs:   make(map[string]bool),
		deleteMsgs:   make(map[string]string),
		commandMsgs:  make(map[string]string),
		receiveMsgs:  make(map[string]string),
		commands:     make(map[string]string),
	}
}

// HandleSOAP is the entry point fed by soap.Defragmenter's onComplete
// callback: a fully reassembled WS-Management SOAP document. Per spec §7,
// a malformed or unrecognized document is logged and discarded — it never
// panics or propagates an error to the caller.
func (d *Dispatcher) HandleSOAP(activityID string, pid, tid uint32, soapDoc string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered from panic handling SOAP document",
				"activity_id", activityID, "pid", pid, "tid", tid, "panic", r)
		}
	}()

	var env envelope
	if err := xml.Unmarshal([]byte(soapDoc), &env); err != nil {
		d.logger.Error("failed to parse WS-Management envelope, discarding",
			"activity_id", activityID, "pid", pid, "tid", tid, "error", err)
		return
	}

	if err := d.dispatch(env, soapDoc); err != nil {
		d.logger.Error("error handling WS-Management message",
			"action", env.Header.Action, "message_id", env.Header.MessageID, "error", err)
	}
}

func (d *Dispatcher) dispatch(env envelope, raw string) error {
	switch env.Header.Action {
	case ActionCreate:
		return d.onCreate(env)
	case ActionCreateResponse:
		return d.onCreateResponse(env)
	case ActionDelete:
		return d.onDelete(env)
	case ActionDeleteResponse:
		return d.onDeleteResponse(env)
	case ActionCommand:
		return d.onCommand(env)
	case ActionCommandResponse:
		return d.onCommandResponse(env)
	case ActionReceive:
		return d.onReceive(env)
	case ActionReceiveResponse:
		return d.onReceiveResponse(env)
	case ActionSignal, ActionSignalResponse:
		// No PSRP-relevant content: signals carry only control codes
		// (e.g. terminate), not fragment data.
		return nil
	case ActionFault:
		d.logFault(raw)
		return nil
	default:
		d.logger.Debug("ignoring WS-Management action outside traced scope", "action", env.Header.Action)
		return nil
	}
}

// onCreate handles a Shell creation request. The real ShellId is not known
// until CreateResponse, so the request's own MessageID is used as a
// pending-shell identifier (spec §4.3).
func (d *Dispatcher) onCreate(env envelope) error {
	messageID := env.Header.MessageID
	if messageID == "" {
		return fmt.Errorf("Create message with no MessageID")
	}
	d.createMsgs[messageID] = true
	d.defrag.NewPendingShell(messageID)

	if env.Body.Shell != nil && env.Body.Shell.CreationXML != "" {
		d.defrag.NewFragmentDataPendingShell(messageID, decodeBase64(d.logger, env.Body.Shell.CreationXML), "")
	}
	return nil
}

// onCreateResponse promotes the pending shell tracked under RelatesTo to
// the real ShellId reported in ResourceCreated's ReferenceParameters.
func (d *Dispatcher) onCreateResponse(env envelope) error {
	messageID := env.Header.RelatesTo
	if !d.createMsgs[messageID] {
		return fmt.Errorf("CreateResponse relates to untracked MessageID %q", messageID)
	}
	delete(d.createMsgs, messageID)

	var shellID string
	if env.Body.ResourceCreated != nil {
		shellID = env.Body.ResourceCreated.ReferenceParameters.SelectorSet.ShellID()
	}
	if shellID == "" {
		return fmt.Errorf("CreateResponse for MessageID %q carries no ShellId", messageID)
	}
	d.defrag.PromotePending(messageID, shellID)
	return nil
}

// onDelete tracks a shell teardown request so the matching DeleteResponse
// can resolve which ShellId to evict.
func (d *Dispatcher) onDelete(env envelope) error {
	messageID := env.Header.MessageID
	shellID := env.Header.SelectorSet.ShellID()
	if messageID == "" || shellID == "" {
		return fmt.Errorf("Delete message missing MessageID or ShellId selector")
	}
	d.deleteMsgs[messageID] = shellID
	return nil
}

// onDeleteResponse evicts the shell's buffers once the server confirms
// deletion (spec §4.3 invariant 4).
func (d *Dispatcher) onDeleteResponse(env envelope) error {
	messageID := env.Header.RelatesTo
	shellID, ok := d.deleteMsgs[messageID]
	if !ok {
		return fmt.Errorf("DeleteResponse relates to untracked MessageID %q", messageID)
	}
	delete(d.deleteMsgs, messageID)
	d.defrag.DeleteShell(shellID)
	return nil
}

// onCommand handles a new pipeline/command request. Its Arguments element
// carries the first PSRP fragment of the pipeline creation object; the
// CommandId that fragment belongs to is not known until CommandResponse,
// so it is fed in with an empty command id.
func (d *Dispatcher) onCommand(env envelope) error {
	messageID := env.Header.MessageID
	shellID := env.Header.SelectorSet.ShellID()
	if messageID == "" || shellID == "" {
		return fmt.Errorf("Command message missing MessageID or ShellId selector")
	}
	d.commandMsgs[messageID] = shellID

	if env.Body.CommandLine != nil && env.Body.CommandLine.Arguments != "" {
		d.defrag.NewFragmentData(shellID, decodeBase64(d.logger, env.Body.CommandLine.Arguments), "")
	}
	return nil
}

// onCommandResponse binds the new CommandId to its shell once the server
// allocates one.
func (d *Dispatcher) onCommandResponse(env envelope) error {
	messageID := env.Header.RelatesTo
	shellID, ok := d.commandMsgs[messageID]
	if !ok {
		return fmt.Errorf("CommandResponse relates to untracked MessageID %q", messageID)
	}
	delete(d.commandMsgs, messageID)

	if env.Body.CommandResponse == nil || env.Body.CommandResponse.CommandID == "" {
		return fmt.Errorf("CommandResponse for MessageID %q carries no CommandId", messageID)
	}
	d.commands[env.Body.CommandResponse.CommandID] = shellID
	return nil
}

// onReceive tracks a poll request so the matching ReceiveResponse (which
// only carries RelatesTo, not a shell selector of its own) can be resolved
// back to a shell.
func (d *Dispatcher) onReceive(env envelope) error {
	messageID := env.Header.MessageID
	shellID := env.Header.SelectorSet.ShellID()
	if messageID == "" || shellID == "" {
		return fmt.Errorf("Receive message missing MessageID or ShellId selector")
	}
	d.receiveMsgs[messageID] = shellID
	return nil
}

// onReceiveResponse decompresses and feeds each stream's fragment data to
// the PSRP defragmenter, and logs command completion (spec §4.2: a
// CommandId is finished once State == Done or ExitCode is present).
func (d *Dispatcher) onReceiveResponse(env envelope) error {
	messageID := env.Header.RelatesTo
	shellID, ok := d.receiveMsgs[messageID]
	if !ok {
		return fmt.Errorf("ReceiveResponse relates to untracked MessageID %q", messageID)
	}
	// A shell keeps polling Receive across many ReceiveResponses, so the
	// tracking entry is not removed here.

	if env.Body.ReceiveResponse == nil {
		return nil
	}

	for _, stream := range env.Body.ReceiveResponse.Stream {
		if stream.Data == "" {
			continue
		}
		raw := decodeBase64(d.logger, stream.Data)
		data := raw
		if d.decompressor != nil {
			data = d.decompressor.Decompress(raw)
		}
		d.defrag.NewFragmentData(shellID, data, stream.CommandID)
	}

	for _, cs := range env.Body.ReceiveResponse.CommandState {
		if cs.State == CommandStateDone || cs.ExitCode != nil {
			d.logger.Info("command finished", "shell_id", shellID, "command_id", cs.CommandID, "state", cs.State)
			delete(d.commands, cs.CommandID)
		}
	}
	return nil
}

// logFault parses and logs a WS-Management fault for diagnostics. Faults
// carry no PSRP payload and are otherwise ignored (spec §4.2).
func (d *Dispatcher) logFault(raw string) {
	err := CheckFault([]byte(raw))
	if err == nil {
		return
	}
	if !IsFault(err) {
		d.logger.Warn("received fault action but could not parse fault body", "error", err)
		return
	}

	fault := err.(*Fault)
	kind := "other"
	switch {
	case fault.IsAccessDenied():
		kind = "access_denied"
	case fault.IsShellNotFound():
		kind = "shell_not_found"
	case fault.IsTimeout():
		kind = "timeout"
	}

	d.logger.Warn("WS-Management fault", "kind", kind, "code", fault.Code, "subcode", fault.Subcode, "reason", fault.Reason)
}

func decodeBase64(logger *slog.Logger, s string) []byte {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		logger.Error("failed to base64-decode fragment payload", "error", err)
		return nil
	}
	return data
}
