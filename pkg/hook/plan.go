package hook

type Plan struct {
	Enabled bool

	PreBuildCommands  []string
	PostBuildCommands []string

	// Global Flags
	DryRun bool
}
