// Package psrptrace passively reconstructs remote PowerShell activity on a
// Windows host by consuming operating-system trace events emitted by the
// WinRM and PowerShell ETW providers, recovering the encapsulated
// PowerShell Remoting Protocol (PSRP) message stream, and surfacing the
// commands executed and their outputs in human-readable form.
//
// This package itself holds no code; it documents the architecture shared
// by every subpackage. The actual capture pipeline is built from two
// independent ingress paths that converge on a single PSRP defragmenter:
//
//	[Trace events] → soap.Defragmenter → wsman.Dispatcher → psrp.Defragmenter → psrp.DecodeMessage → tracer.CommandTracer
//	                                          ↑ uses xpress.StreamDecompressor
//	[Trace events] → psetw.Parser ──────────────────────────────→ psrp.Defragmenter (same downstream)
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  cmd/psrptrace/     cobra CLI: winrm/powershell/version       │
//	├──────────────────────────────────────────────────────────────┤
//	│  internal/pipeline/ composition root wiring both ingress     │
//	│                     paths into the shared defragmenter/tracer│
//	├───────────────────────────┬────────────────────────────────--┤
//	│  soap/  wsman/  xpress/   │  psetw/                          │
//	│  (WinRM/WS-Man path)      │  (direct PSRP-fragment path)     │
//	├───────────────────────────┴──────────────────────────────────┤
//	│  psrp/              PsrpDefragmenter, message decode, CLIXML │
//	├──────────────────────────────────────────────────────────────┤
//	│  tracer/            CommandTracer: human-readable output     │
//	├──────────────────────────────────────────────────────────────┤
//	│  config/  liveview/  internal/log/   ambient/presentation    │
//	├──────────────────────────────────────────────────────────────┤
//	│  trace/             ETW session + event-shape boundary        │
//	│                     (OS trace subscription is out of scope)  │
//	└──────────────────────────────────────────────────────────────┘
//
// # Quick Start
//
//	cfg, err := config.Load("psrptrace.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger, closer, err := internallog.New(internallog.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer closer.Close()
//
//	p := pipeline.New(logger, cfg, trace.WinRMProvider, cfg.ExcludePIDsWith, nil, func(line string) {
//	    fmt.Println(line)
//	})
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	// ... wait for ENTER or CTRL+C ...
//	p.Stop()
package psrptrace
