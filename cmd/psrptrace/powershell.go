package main

import (
	"github.com/smnsjas/go-psrptrace/trace"
	"github.com/spf13/cobra"
)

func newPowerShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "powershell",
		Short: "Capture the Microsoft-Windows-PowerShell provider (direct PSRP-fragment path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(trace.PowerShellProvider)
		},
	}
}
