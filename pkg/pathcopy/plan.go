package pathcopy

type Plan struct {
	Enabled bool

	// Global Flags
	DryRun  bool
	Metrics bool
}
