// Command docmatch compares two PDFs on bytes, text layer and rendered
// appearance.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	appName = "docmatch"

	// persistent flags
	configPath  string
	verboseMode bool
	jsonOutput  bool

	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

// Exit statuses.
const (
	exitSame   = 0
	exitError  = 1
	exitDiffer = 2
)

// errDiffer signals a completed comparison that found a difference.
var errDiffer = errors.New("documents differ")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	err := root.Execute()
	switch {
	case err == nil:
		return exitSame
	case errors.Is(err, errDiffer):
		return exitDiffer
	default:
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Compare PDF documents by bytes, text and appearance",
		Long: `docmatch fingerprints PDF documents on three independent axes:

  - sha256 of the raw bytes
  - sha256 of the normalized text layer
  - per-page perceptual hashes of the rendered pages

Examples:
  # compare two files, colored summary
  docmatch compare signed.pdf original.pdf

  # machine readable
  docmatch compare a.pdf b.pdf --json

  # fingerprint a single file
  docmatch fingerprint a.pdf`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $DOCMATCH_CONFIG)")
	root.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "debug logging to stderr")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a summary")

	root.AddCommand(newCompareCmd(), newFingerprintCmd())
	return root
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if verboseMode {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func printSeparator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("─", 50))
}
