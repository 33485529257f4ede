package preflight

type Plan struct {
	RootAccessible   bool
	OutputSafe       bool
	OutputAccessible bool

	// Global Flags
	DryRun bool
}
