package psrp

import "log/slog"

// objectBuffer is the per-(identifier, object_id) accumulator described in
// spec §3 as ObjectBuffer. A rejected out-of-order fragment leaves the
// buffer in place without advancing lastFragmentID, so after a lost
// fragment every later fragment of that object is rejected as well.
type objectBuffer struct {
	lastFragmentID int64
	buffer         []byte
	commandID      string
}

// pendingMessage is a completed object stashed for a pending shell until
// its real ShellId is known (spec §4.3 "Pending shell completion stash").
type pendingMessage struct {
	objectID  int64
	data      []byte
	commandID string
}

// CompletionFunc is invoked once a full PSRP object has been reassembled
// for a known shell.
type CompletionFunc func(shellID string, objectID int64, data []byte, commandID string)

// Defragmenter reassembles PSRP messages from fragment streams, separately
// for each (identifier, object_id), across two disjoint identifier spaces
// — known shells (by ShellId) and pending shells (by creating MessageId) —
// grounded on PSRPDefragmenter in the original implementation's psrp.py.
//
// This type is not internally locked: callers must serialize access. In
// internal/pipeline every call arrives from the active ingress component
// (soap.Defragmenter or psetw.Parser) while that component holds its own
// mutex; there is no separate actor goroutine.
type Defragmenter struct {
	logger *slog.Logger

	shellBufs        map[string]map[int64]*objectBuffer
	pendingShellBufs map[string]map[int64]*objectBuffer
	pendingCompleted map[string][]pendingMessage

	onComplete CompletionFunc
}

// New creates a Defragmenter that calls onComplete for each PSRP object
// completed under a known shell (including ones flushed on promotion).
func New(logger *slog.Logger, onComplete CompletionFunc) *Defragmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Defragmenter{
		logger:           logger.With("component", "psrp.defrag"),
		shellBufs:        make(map[string]map[int64]*objectBuffer),
		pendingShellBufs: make(map[string]map[int64]*objectBuffer),
		pendingCompleted: make(map[string][]pendingMessage),
		onComplete:       onComplete,
	}
}

// HasShell reports whether shellID is tracked as a known shell.
func (d *Defragmenter) HasShell(shellID string) bool {
	_, ok := d.shellBufs[shellID]
	return ok
}

// HasPendingShell reports whether messageID is tracked as a pending shell.
func (d *Defragmenter) HasPendingShell(messageID string) bool {
	_, ok := d.pendingShellBufs[messageID]
	return ok
}

// NewShell registers a known shell's buffer space. Warns (does not error)
// on a duplicate registration, matching the original's behavior.
func (d *Defragmenter) NewShell(shellID string) {
	if shellID == "" {
		d.logger.Error("NewShell called with an empty shell id")
		return
	}
	if _, exists := d.shellBufs[shellID]; exists {
		d.logger.Warn("request to create a new shell that already existed", "shell_id", shellID)
		return
	}
	d.shellBufs[shellID] = make(map[int64]*objectBuffer)
}

// NewPendingShell registers a pending shell's buffer space, symmetric to
// NewShell.
func (d *Defragmenter) NewPendingShell(messageID string) {
	if messageID == "" {
		d.logger.Error("NewPendingShell called with an empty message id")
		return
	}
	if _, exists := d.pendingShellBufs[messageID]; exists {
		d.logger.Warn("request to create a new pending shell that already existed", "message_id", messageID)
		return
	}
	d.pendingShellBufs[messageID] = make(map[int64]*objectBuffer)
}

// NewFragment consumes one pre-parsed fragment for a known shell (used by
// the PowerShell-provider path, spec §4.6).
func (d *Defragmenter) NewFragment(shellID string, objectID, fragmentID int64, start, end bool, data []byte) {
	d.appendFragment(objectID, fragmentID, start, end, data, shellID, d.HasShell, d.NewShell, d.shellBufs,
		func(id string, oid int64, buf []byte, cmd string) { d.onComplete(id, oid, buf, cmd) }, "")
}

// NewFragmentData consumes a raw fragment stream for a known shell,
// parsing 21-byte headers and iterating until the buffer is exhausted
// (spec §4.3).
func (d *Defragmenter) NewFragmentData(shellID string, data []byte, commandID string) {
	d.decodeFragmentStream(shellID, d.HasShell, d.NewShell, d.shellBufs,
		func(id string, oid int64, buf []byte, cmd string) { d.onComplete(id, oid, buf, cmd) }, data, commandID)
}

// NewFragmentDataPendingShell is NewFragmentData for a pending shell.
func (d *Defragmenter) NewFragmentDataPendingShell(messageID string, data []byte, commandID string) {
	d.decodeFragmentStream(messageID, d.HasPendingShell, d.NewPendingShell, d.pendingShellBufs,
		d.stashPendingCompletion, data, commandID)
}

// stashPendingCompletion is the completion callback used for the pending
// identifier space: instead of delivering immediately, it stashes the
// message until PromotePending is called.
func (d *Defragmenter) stashPendingCompletion(messageID string, objectID int64, data []byte, commandID string) {
	d.pendingCompleted[messageID] = append(d.pendingCompleted[messageID], pendingMessage{
		objectID: objectID, data: data, commandID: commandID,
	})
}

func (d *Defragmenter) decodeFragmentStream(
	identifier string,
	hasIdentifier func(string) bool,
	registerIdentifier func(string),
	bufs map[string]map[int64]*objectBuffer,
	complete func(string, int64, []byte, string),
	data []byte,
	commandID string,
) {
	fragments, err := ParseFragments(data)
	if err != nil {
		d.logger.Error("failed to parse fragment stream", "identifier", identifier, "error", err)
	}
	for _, f := range fragments {
		d.appendFragment(f.ObjectID, f.FragmentID, f.Start, f.End, f.Payload, identifier, hasIdentifier,
			registerIdentifier, bufs, complete, commandID)
	}
}

func (d *Defragmenter) appendFragment(
	objectID, fragmentID int64,
	start, end bool,
	payload []byte,
	identifier string,
	hasIdentifier func(string) bool,
	registerIdentifier func(string),
	bufs map[string]map[int64]*objectBuffer,
	complete func(string, int64, []byte, string),
	commandID string,
) {
	if !hasIdentifier(identifier) {
		d.logger.Warn("adding tracking for an identifier we were not tracking before, but received fragment data for",
			"identifier", identifier)
		registerIdentifier(identifier)
	}

	buf, ok := bufs[identifier][objectID]
	if !ok {
		buf = &objectBuffer{lastFragmentID: -1}
		bufs[identifier][objectID] = buf
	}
	buf.commandID = commandID

	expected := buf.lastFragmentID + 1
	if expected != fragmentID {
		d.logger.Error("unexpected or out-of-order fragment",
			"identifier", identifier, "object_id", objectID, "expected_fragment_id", expected, "got", fragmentID)
		return
	}

	buf.buffer = append(buf.buffer, payload...)
	buf.lastFragmentID = fragmentID

	if end {
		d.logger.Info("end fragment found", "identifier", identifier, "object_id", objectID)
		complete(identifier, objectID, buf.buffer, buf.commandID)
		delete(bufs[identifier], objectID)
	}
}

// PromotePending migrates a pending shell's buffers to its real ShellId
// and flushes any stashed completions in the order they completed (spec
// §4.3 "Promotion", §8 S3).
//
// If no such pending entry exists, the shell is registered anyway and a
// warning is logged (messages that were associated with the pending shell
// are lost, matching the original). If shellID is already a known shell,
// the pending buffers are discarded in favor of the existing ones — the
// duplicate-create collision policy decided in DESIGN.md.
func (d *Defragmenter) PromotePending(messageID, shellID string) {
	bufs, ok := d.pendingShellBufs[messageID]
	if !ok {
		d.NewShell(shellID)
		d.logger.Warn("attempt to promote a pending shell that was not tracked; shell added with no buffered messages",
			"message_id", messageID, "shell_id", shellID)
		return
	}
	delete(d.pendingShellBufs, messageID)

	if _, exists := d.shellBufs[shellID]; exists {
		d.logger.Warn("promoting pending shell onto a shell id that already exists, discarding pending buffers",
			"message_id", messageID, "shell_id", shellID)
	} else {
		d.shellBufs[shellID] = bufs
	}

	for _, m := range d.pendingCompleted[messageID] {
		d.onComplete(shellID, m.objectID, m.data, m.commandID)
	}
	delete(d.pendingCompleted, messageID)
}

// DeleteShell drops all buffers for shellID, a no-op if it is not tracked.
func (d *Defragmenter) DeleteShell(shellID string) {
	if _, ok := d.shellBufs[shellID]; ok {
		d.logger.Debug("discarding buffers for deleted shell", "shell_id", shellID)
		delete(d.shellBufs, shellID)
	}
}
