package assetaudit

type Plan struct {
	Enabled bool
	Strict  bool

	// Files to scan, relative to the output directory.
	MarkupFile     string
	StylesheetFile string

	// Global Flags
	DryRun bool
}
