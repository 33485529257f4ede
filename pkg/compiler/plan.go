package compiler

import "time"

type Plan struct {
	Enabled bool

	// Command is the executable followed by its leading arguments,
	// e.g. ["npx", "tailwindcss"].
	Command    []string
	InputFlag  string
	OutputFlag string
	MinifyFlag string
	Minify     bool
	Timeout    time.Duration // 0 disables the timeout

	// Global Flags
	DryRun bool
}
