package precompress

import "github.com/paulschiretz/pgl-stage/pkg/compression"

type Plan struct {
	Enabled    bool
	Codecs     []compression.Codec
	Extensions []string
	Level      compression.Level

	// Global Flags
	DryRun  bool
	Metrics bool
}
