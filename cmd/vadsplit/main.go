// Command vadsplit splits an audio file into speech segments.
//
// The pipeline invocation prints exactly one JSON line on stdout; all logs go
// to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/vadsplit/internal/pipeline"
)

const usageMessage = "Required arguments: --input <path> --output <dir>"

// usageError marks a malformed root invocation.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// reportedError is a failure whose JSON result was already written.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		// cobra reads os.Args when given nil.
		args = []string{}
	}
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ue *usageError
	var re *reportedError
	switch {
	case errors.As(err, &ue):
		writeResult(stdout, pipeline.Failure(usageMessage))
		fmt.Fprintf(stderr, "vadsplit: %v\n", ue.err)
	case errors.As(err, &re):
		fmt.Fprintf(stderr, "vadsplit: %v\n", re.err)
	default:
		fmt.Fprintf(stderr, "vadsplit: %v\n", err)
	}
	return 1
}

// globalOptions are flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{}
	var input, output string

	root := &cobra.Command{
		Use:   "vadsplit --input <file> --output <dir>",
		Short: "Split an audio file into speech segments",
		Long: `vadsplit detects speech with the Silero VAD model and writes each speech
segment as a 16 kHz mono WAV file. The result is one JSON line on stdout.

The legacy form "vadsplit <input> <output>" is also accepted.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := resolvePaths(input, output, args)
			if err != nil {
				return &usageError{err: err}
			}
			return runPipeline(cmd.Context(), g, in, out, stdout, stderr)
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file (default: ~/.config/vadsplit/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&input, "input", "", "audio file to segment")
	root.Flags().StringVar(&output, "output", "", "directory for segment files")

	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		if !c.HasParent() {
			return &usageError{err: err}
		}
		return err
	})

	root.AddCommand(
		newModelsCmd(g, stdout, stderr),
		newInspectCmd(g, stdout, stderr),
		newConvertCmd(g, stdout, stderr),
		newToneCmd(stdout),
		newConfigCmd(stdout),
	)
	return root
}

// resolvePaths accepts either both flags or exactly two positional
// arguments, never a mix.
func resolvePaths(input, output string, args []string) (string, string, error) {
	flagged := input != "" || output != ""
	switch {
	case flagged && len(args) > 0:
		return "", "", fmt.Errorf("unexpected arguments %q alongside --input/--output", args)
	case flagged:
		if input == "" || output == "" {
			return "", "", errors.New("both --input and --output are required")
		}
		return input, output, nil
	case len(args) == 2 && args[0] != "" && args[1] != "":
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("expected --input and --output, got %d positional arguments", len(args))
	}
}

func runPipeline(ctx context.Context, g *globalOptions, input, output string, stdout, stderr io.Writer) error {
	a, err := newApp(g, stderr)
	if err != nil {
		writeResult(stdout, pipeline.Failure(err.Error()))
		return &reportedError{err: err}
	}
	defer a.close()

	ctrl := pipeline.New(pipeline.Deps{
		Models:     a.acquirer(a.sileroLoader()),
		Normalizer: a.normalizer(),
		Extractor:  a.extractor(),
		Logger:     a.log,
		Metrics:    a.metrics,
	})

	writeResult(stdout, ctrl.Process(ctx, input, output))
	return nil
}

// writeResult prints r as a single JSON line.
func writeResult(w io.Writer, r pipeline.Result) {
	if err := printJSON(w, r); err != nil {
		_ = printJSON(w, pipeline.Failure(err.Error()))
	}
}

// printJSON writes v as one line of JSON without HTML escaping, so paths
// and the usage text keep their < and > characters.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
