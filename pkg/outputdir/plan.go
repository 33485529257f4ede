package outputdir

type Plan struct {
	Enabled bool

	// Global Flags
	DryRun bool
}
