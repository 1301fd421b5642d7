// Command levenshtein prints pairwise edit-distance matrices, computed on the
// CPU or on a compute device.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
	"github.com/Milo4uk/levenshtein-distance/internal/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	stderr     io.Writer
	log        *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "levenshtein",
		Short: "Pairwise Levenshtein distance matrices on CPU or GPU",
		Long: `levenshtein computes the edit distance between every pair of words in a
batch and prints the full matrix.

The CPU path is the reference. The GPU path runs the same recurrence as a
compute kernel through Vulkan (or the software device when no adapter is
present) and returns an identical matrix.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "levenshtein v%s (%s)\n", version, commit)
		},
	})
	rootCmd.AddCommand(a.computeCmd())
	rootCmd.AddCommand(a.benchCmd())
	rootCmd.AddCommand(a.devicesCmd())

	return rootCmd
}

// load reads the config file and environment and installs the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFromFile(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	levenshtein.SetLogger(a.log)
	return nil
}

// sessionOptions maps the config onto session options.
func (a *app) sessionOptions() ([]levenshtein.SessionOption, error) {
	backend, err := levenshtein.ParseBackend(a.cfg.Backend)
	if err != nil {
		return nil, err
	}
	return []levenshtein.SessionOption{
		levenshtein.WithBackend(backend),
		levenshtein.WithPadding(a.cfg.Padding),
		levenshtein.WithWorkgroupSize(a.cfg.WorkgroupSize),
		levenshtein.WithWorkers(a.cfg.Workers),
		levenshtein.WithFenceTimeout(a.cfg.FenceTimeout),
	}, nil
}
