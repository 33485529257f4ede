package bundle

import "github.com/paulschiretz/pgl-stage/pkg/compression"

type Plan struct {
	Enabled bool
	Format  Format
	Level   compression.Level

	// Global Flags
	DryRun  bool
	Metrics bool
}
