// Package pipeline wires the two ingress paths (spec §2) into the shared
// PSRP defragmenter and command tracer, and connects the result to the
// configured trace.Session. It is the composition root the CLI commands
// drive; none of the decoding logic lives here.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/smnsjas/go-psrptrace/config"
	"github.com/smnsjas/go-psrptrace/psetw"
	"github.com/smnsjas/go-psrptrace/psrp"
	"github.com/smnsjas/go-psrptrace/soap"
	"github.com/smnsjas/go-psrptrace/trace"
	"github.com/smnsjas/go-psrptrace/tracer"
	"github.com/smnsjas/go-psrptrace/wsman"
	"github.com/smnsjas/go-psrptrace/xpress"
)

// Pipeline owns every component in the reassembly/decoding chain for one
// capture run and the trace.Session feeding it.
type Pipeline struct {
	logger  *slog.Logger
	session trace.Session

	defrag     *psrp.Defragmenter
	soapDefrag *soap.Defragmenter
	dispatcher *wsman.Dispatcher
	psetw      *psetw.Parser
	tracer     *tracer.CommandTracer
}

// New builds a Pipeline for provider, wiring the matching ingress path
// (spec §2's two diagrams) into a shared PSRP defragmenter and tracer.
// onLine receives every reconstructed command/output line; decompressor
// is the external XPRESS primitive (out of scope per spec §1) used only
// by the WinRM path.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	provider trace.Provider,
	excludePIDs trace.ExcludeSelfPIDs,
	decompressor xpress.Decompressor,
	onLine tracer.LineFunc,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{logger: logger}

	p.tracer = tracer.New(logger.With("component", "tracer"), onLine)
	p.defrag = psrp.New(logger.With("component", "psrp"), p.onPsrpObject)

	switch provider.Name {
	case trace.PowerShellProvider.Name:
		p.psetw = psetw.New(logger.With("component", "psetw"), p.onPsrpFragment)
		p.session = trace.NewSession(provider, cfg.SessionName, excludePIDs, p.psetw.NewEvent)

	default:
		streamDecompressor := xpress.NewStreamDecompressor(decompressor, logger.With("component", "xpress"))
		p.dispatcher = wsman.New(logger.With("component", "wsman"), p.defrag, streamDecompressor)
		p.soapDefrag = soap.New(logger.With("component", "soap"), p.dispatcher.HandleSOAP)
		p.session = trace.NewSession(provider, cfg.SessionName, excludePIDs, p.onWinRMEvent)
	}

	return p
}

// Start begins the underlying trace.Session; see trace.Session.Start.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.session.Start(ctx)
}

// Stop ends the underlying trace.Session; see trace.Session.Stop.
func (p *Pipeline) Stop() error {
	return p.session.Stop()
}

// onWinRMEvent adapts a raw trace.Event carrying a chunked SOAP document
// field set into a soap.ChunkEvent, per spec §4.1.
func (p *Pipeline) onWinRMEvent(evt trace.Event) {
	activityID := evt.Header.ActivityID
	soapText, ok := evt.String("SoapDocument")
	if !ok {
		return
	}
	totalChunks, _ := evt.Uint64("totalChunks")
	index, _ := evt.Uint64("index")

	p.soapDefrag.HandleEvent(soap.ChunkEvent{
		ActivityID:  activityID,
		PID:         evt.Header.ProcessID,
		TID:         evt.Header.ThreadID,
		TotalChunks: uint32(totalChunks),
		Index:       uint32(index),
		SoapText:    soapText,
	})
}

// onPsrpFragment bridges psetw.Parser's resolved fragments into the
// shared PSRP defragmenter.
func (p *Pipeline) onPsrpFragment(shellID string, objectID, fragmentID int64, start, end bool, length uint64, payload []byte) {
	p.defrag.NewFragment(shellID, objectID, fragmentID, start, end, payload)
}

// onPsrpObject is the PSRP defragmenter's completion callback: decode the
// reassembled object into a Message and hand it to the command tracer.
func (p *Pipeline) onPsrpObject(shellID string, objectID int64, data []byte, commandID string) {
	msg, err := psrp.DecodeMessage(data)
	if err != nil {
		p.logger.Warn("psrp message decode failed", "shell_id", shellID, "object_id", objectID, "error", err)
		return
	}
	if !msg.Type.Known() {
		p.logger.Error("unknown psrp message type, dropping", "shell_id", shellID, "object_id", objectID,
			"message_type", uint32(msg.Type))
		return
	}
	p.tracer.Message(msg.Destination, msg.Type, msg.RunspaceID, msg.PipelineID, msg.Text)
}
