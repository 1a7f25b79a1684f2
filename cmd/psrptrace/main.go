// Command psrptrace passively reconstructs remote PowerShell activity from
// WinRM and PowerShell ETW trace events, per spec.md's two capture modes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
