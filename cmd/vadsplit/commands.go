package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/audio"
	"github.com/chaz8081/vadsplit/internal/cache"
	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/models"
)

func newModelsCmd(g *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the cached VAD model",
	}

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Download the model into the cache",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := newApp(g, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			_, source, err := a.acquirer(models.ValidateOnly).AcquireWithSource(c.Context())
			if err != nil {
				return err
			}
			a.log.Info("model cached",
				zap.String("source", source),
				zap.String("key", a.modelOptions(nil).Key()),
			)
			fmt.Fprintln(stdout, cache.Location(a.store))
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print where the model cache lives",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp(g, stderr)
			if err != nil {
				return err
			}
			defer a.close()
			fmt.Fprintln(stdout, cache.Location(a.store))
			return nil
		},
	}

	cmd.AddCommand(fetch, path)
	return cmd
}

func newInspectCmd(g *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the decoded format of an audio file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(g, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := audio.Probe(c.Context(), a.decoder(), args[0])
			if err != nil {
				return err
			}
			return printJSON(stdout, info)
		},
	}
}

func newConvertCmd(g *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out.wav>",
		Short: "Rewrite any decodable audio file as 16-bit PCM WAV",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := newApp(g, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := audio.Convert(c.Context(), a.decoder(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(stdout, info)
		},
	}
}

func newToneCmd(stdout io.Writer) *cobra.Command {
	var freq, amplitude, seconds float64
	var rate int

	cmd := &cobra.Command{
		Use:   "tone <out.wav>",
		Short: "Write a sine tone, handy as test input",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if rate <= 0 || seconds < 0 {
				return fmt.Errorf("tone: --rate must be > 0 and --seconds >= 0")
			}
			buf := audio.Tone(freq, amplitude, seconds, rate)
			if err := (audio.WAVEncoder{}).Encode(args[0], buf); err != nil {
				return err
			}
			fmt.Fprintln(stdout, args[0])
			return nil
		},
	}
	cmd.Flags().Float64Var(&freq, "freq", 1000, "frequency in Hz")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.5, "peak amplitude in (0, 1]")
	cmd.Flags().Float64Var(&seconds, "seconds", 5, "length in seconds")
	cmd.Flags().IntVar(&rate, "rate", config.CanonicalSampleRate, "sample rate in Hz")
	return cmd
}

func newConfigCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintf(stdout, "config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintln(stdout, path)
			return nil
		},
	})
	return cmd
}
