// Package flagparse turns the command line into a Command and a map holding
// only the flags the user actually set, so they can be merged over the loaded
// configuration without clobbering file values with flag defaults.
package flagparse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/paulschiretz/pgl-stage/pkg/buildinfo"
)

// usageOutput receives help text; replaced in tests.
var usageOutput io.Writer = os.Stderr

// cliFlags holds pointers to all possible command-line flags. A nil pointer
// means the flag is not registered for the current command.
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool
	Metrics  *bool

	// Shared: Build / Init
	Root       *string
	Output     *string
	Stylesheet *string
	Markup     *string
	Images     *string
	Fonts      *string

	Compiler        *string
	Minify          *bool
	CompilerTimeout *int

	CopyWorkers  *int
	BufferSizeKB *int

	Audit       *bool
	StrictAudit *bool

	Precompress           *bool
	PrecompressExtensions *string
	Bundle                *bool
	BundleFormat          *string
	BundleLevel           *string

	PreBuildHooks  *string
	PostBuildHooks *string

	// Init specific
	Force   *bool
	Default *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "logging level: debug, notice, info, warn, error")
}

func registerRunFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = fs.Bool("dry-run", false, "show what would be done without changing anything")
	f.Metrics = fs.Bool("metrics", false, "log file and byte counters per copy step")
}

func registerProjectFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Root = fs.StringP("root", "r", ".", "project root directory")
	f.Output = fs.StringP("output", "o", "", "output directory, relative to the root (default \"dist\")")
	f.Stylesheet = fs.String("stylesheet", "", "stylesheet entry file (default \"src/styles.css\")")
	f.Markup = fs.String("markup", "", "markup file (default \"index.html\")")
	f.Images = fs.String("images", "", "image directory (default \"images\")")
	f.Fonts = fs.String("fonts", "", "font directory (default \"fonts\")")

	f.Compiler = fs.String("compiler", "", "stylesheet compiler command (default \"npx tailwindcss\")")
	f.Minify = fs.Bool("minify", true, "pass the minify flag to the compiler")
	f.CompilerTimeout = fs.Int("compiler-timeout", 0, "seconds before the compiler is killed (0 = no timeout)")

	f.CopyWorkers = fs.Int("copy-workers", 0, "concurrent file copies per asset tree")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "I/O buffer size in kilobytes for copies and compression")

	f.Audit = fs.Bool("audit", true, "check that staged markup and stylesheet references resolve")
	f.StrictAudit = fs.Bool("strict-audit", false, "fail the build on unresolved references")

	f.Precompress = fs.Bool("precompress", false, "write .gz/.zst sidecars for text assets")
	f.PrecompressExtensions = fs.String("precompress-extensions", "", "comma-separated extensions to precompress")
	f.Bundle = fs.Bool("bundle", false, "pack the output directory into an archive beside it")
	f.BundleFormat = fs.String("bundle-format", "", "bundle format: tar.gz or tar.zst")
	f.BundleLevel = fs.String("bundle-level", "", "compression level: default, fastest, better, best")

	f.PreBuildHooks = fs.String("pre-build-hooks", "", "comma-separated commands to run before the build")
	f.PostBuildHooks = fs.String("post-build-hooks", "", "comma-separated commands to run after a successful build")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.BoolP("force", "f", false, "overwrite an existing configuration without asking")
	f.Default = fs.Bool("default", false, "start from defaults instead of the existing configuration")
}

// Parse parses args (usually os.Args[1:]). With no arguments, 'help' or a
// -h flag it prints usage and returns None without error.
func Parse(args []string) (Command, map[string]any, error) {
	if len(args) == 0 {
		printTopLevelUsage()
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	switch cmdStr {
	case "help", "-h", "-help", "--help":
		printTopLevelUsage()
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	fs.SetOutput(usageOutput)

	switch command {
	case Build:
		registerGlobalFlags(fs, f)
		registerRunFlags(fs, f)
		registerProjectFlags(fs, f)
		fs.Usage = func() { printSubcommandUsage(command, "Stage the site into the output directory.", fs) }
	case Init:
		registerGlobalFlags(fs, f)
		registerProjectFlags(fs, f)
		registerInitFlags(fs, f)
		fs.Usage = func() { printSubcommandUsage(command, "Write a configuration file into the project root.", fs) }
	case Version:
		return command, nil, nil
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return None, nil, nil
		}
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments for %s: %v", command, fs.Args())
	}
	return command, flagsToMap(fs, f), nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]any {
	usedFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { usedFlags[fl.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)

	// root is always present so commands know where to work.
	if f.Root != nil {
		flagMap["root"] = *f.Root
	}
	addIfUsed(flagMap, usedFlags, "output", f.Output)
	addIfUsed(flagMap, usedFlags, "stylesheet", f.Stylesheet)
	addIfUsed(flagMap, usedFlags, "markup", f.Markup)
	addIfUsed(flagMap, usedFlags, "images", f.Images)
	addIfUsed(flagMap, usedFlags, "fonts", f.Fonts)

	addIfUsed(flagMap, usedFlags, "minify", f.Minify)
	addIfUsed(flagMap, usedFlags, "compiler-timeout", f.CompilerTimeout)
	addIfUsed(flagMap, usedFlags, "copy-workers", f.CopyWorkers)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)
	addIfUsed(flagMap, usedFlags, "audit", f.Audit)
	addIfUsed(flagMap, usedFlags, "strict-audit", f.StrictAudit)
	addIfUsed(flagMap, usedFlags, "precompress", f.Precompress)
	addIfUsed(flagMap, usedFlags, "bundle", f.Bundle)
	addIfUsed(flagMap, usedFlags, "bundle-format", f.BundleFormat)
	addIfUsed(flagMap, usedFlags, "bundle-level", f.BundleLevel)

	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	addParsedIfUsed(flagMap, usedFlags, "compiler", f.Compiler, strings.Fields)
	addParsedIfUsed(flagMap, usedFlags, "precompress-extensions", f.PrecompressExtensions, ParseList)
	addParsedIfUsed(flagMap, usedFlags, "pre-build-hooks", f.PreBuildHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-build-hooks", f.PostBuildHooks, ParseCmdList)

	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

func printTopLevelUsage() {
	execName := filepath.Base(os.Args[0])
	w := usageOutput
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "Stages a static site: compiles the stylesheet and copies markup, images and fonts.\n\n")
	fmt.Fprintf(w, "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  build       Stage the site into the output directory\n")
	fmt.Fprintf(w, "  init        Write a configuration file into the project root\n")
	fmt.Fprintf(w, "  version     Print the application version\n")
	fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", execName)
}

func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	w := usageOutput
	fmt.Fprintf(w, "%s(%s)\n\n", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "Usage: %s %s [flags]\n\n", execName, command)
	fmt.Fprintf(w, "%s\n\n", desc)
	fmt.Fprintf(w, "Flags:\n")
	fmt.Fprint(w, fs.FlagUsages())
}

// ParseCmdList parses a comma-separated list of shell commands. Quotes and
// backslash escapes are kept for the shell to interpret.
func ParseCmdList(s string) []string {
	return parseListInternal(s, true, true)
}

// ParseList parses a comma-separated list of plain values such as file
// extensions. Quotes only group and are removed; backslashes are literal.
func ParseList(s string) []string {
	return parseListInternal(s, false, false)
}

// parseListInternal splits s on commas outside single or double quotes.
func parseListInternal(s string, keepQuotes, handleEscapes bool) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune
	var isEscaped bool

	appendItem := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\' && handleEscapes:
			isEscaped = true
			current.WriteRune(r)
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
				if keepQuotes {
					current.WriteRune(r)
				}
			case r:
				quoteChar = 0
				if keepQuotes {
					current.WriteRune(r)
				}
			default:
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
