package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smnsjas/go-psrptrace/internal/pipeline"
	"github.com/smnsjas/go-psrptrace/liveview"
	"github.com/smnsjas/go-psrptrace/trace"
	"github.com/spf13/cobra"
)

func newWinRMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "winrm",
		Short: "Capture the Microsoft-Windows-WinRM provider (default WS-Management path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(trace.WinRMProvider)
		},
	}
}

// runCapture implements both of __main__.py's entry points
// (run_winrm_etw/run_powershell_etw): start the trace session, wait for
// ENTER or SIGINT, then stop cleanly with exit code 0.
func runCapture(provider trace.Provider) error {
	cfg, logger := ctx.cfg, ctx.logger

	var liveSrv *liveview.Server
	onLine := func(line string) {
		fmt.Println(line)
	}
	if cfg.LiveView.Enabled {
		liveSrv = liveview.NewServer(logger.With("component", "liveview"), cfg.LiveView.Addr)
		liveSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = liveSrv.Shutdown(shutdownCtx)
		}()

		prev := onLine
		onLine = func(line string) {
			prev(line)
			liveSrv.BroadcastLine("", line)
		}
	}

	p := pipeline.New(logger, cfg, provider, cfg.ExcludePIDsWith, nil, onLine)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(runCtx); err != nil {
		return fmt.Errorf("start trace: %w", err)
	}

	waitForStop()

	return p.Stop()
}

const shutdownTimeout = 5 * time.Second

// waitForStop blocks until ENTER is pressed on stdin or SIGINT/SIGTERM is
// received, matching __main__.py's "Press ENTER or CTRL+C to stop trace".
func waitForStop() {
	fmt.Println()
	fmt.Println("Press ENTER or CTRL+C to stop trace")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	enterCh := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enterCh)
	}()

	select {
	case <-sigCh:
	case <-enterCh:
	}
}
