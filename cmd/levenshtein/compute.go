package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
	"github.com/Milo4uk/levenshtein-distance/internal/report"
	"github.com/Milo4uk/levenshtein-distance/internal/wordlist"
)

func (a *app) computeCmd() *cobra.Command {
	var (
		file    string
		heatmap string
		timing  bool
	)
	cmd := &cobra.Command{
		Use:   "compute [words...]",
		Short: "Print the distance matrix of a batch of words",
		Long: `Print the distance matrix of the words given as arguments or read from a
file of whitespace-separated tokens.

With --gpu the matrix is computed by a compute session. If no session can be
created the CPU path is used instead unless --fallback=false.`,
		Example: `  levenshtein compute kitten sitting
  levenshtein compute -f words.txt --gpu --format csv
  levenshtein compute kitten kill bananas --heatmap distances.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyComputeFlags(cmd); err != nil {
				return err
			}
			words, err := a.readWords(file, args)
			if err != nil {
				return err
			}
			if len(words) == 0 {
				return errors.New("no words given")
			}

			start := time.Now()
			m, path, err := a.compute(words)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			if err := report.Write(cmd.OutOrStdout(), a.cfg.Format, words, m); err != nil {
				return err
			}
			if heatmap != "" {
				if err := report.SaveHeatmap(heatmap, words, m); err != nil {
					return err
				}
			}
			if timing {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s path: %d words in %v\n", path, len(words), elapsed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read words from a file")
	cmd.Flags().Bool("gpu", false, "Compute with a device session instead of the CPU")
	cmd.Flags().String("backend", "", "Device backend: auto, vulkan or software")
	cmd.Flags().Int("padding", 0, "Longest accepted word, in characters")
	cmd.Flags().String("format", "", "Output format: grid, csv or json")
	cmd.Flags().Bool("fallback", true, "Use the CPU path when no device session can be created")
	cmd.Flags().Bool("normalize", true, "Normalize words to Unicode NFC")
	cmd.Flags().StringVar(&heatmap, "heatmap", "", "Also write a heatmap PNG to this path")
	cmd.Flags().BoolVar(&timing, "time", false, "Print elapsed time to stderr")
	return cmd
}

// applyComputeFlags overrides the config with flags given explicitly.
func (a *app) applyComputeFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	var err error
	if f.Changed("gpu") {
		a.cfg.UseGPU, err = f.GetBool("gpu")
	}
	if err == nil && f.Changed("backend") {
		a.cfg.Backend, err = f.GetString("backend")
		// Naming a backend implies the device path.
		a.cfg.UseGPU = true
	}
	if err == nil && f.Changed("padding") {
		a.cfg.Padding, err = f.GetInt("padding")
	}
	if err == nil && f.Changed("format") {
		a.cfg.Format, err = f.GetString("format")
	}
	if err == nil && f.Changed("fallback") {
		a.cfg.Fallback, err = f.GetBool("fallback")
	}
	if err == nil && f.Changed("normalize") {
		a.cfg.Normalize, err = f.GetBool("normalize")
	}
	if err != nil {
		return err
	}
	return a.cfg.Validate()
}

func (a *app) readWords(file string, args []string) ([]string, error) {
	opts := wordlist.Options{Normalize: a.cfg.Normalize}
	words := wordlist.FromArgs(args, opts)
	if file != "" {
		fromFile, err := wordlist.ReadFile(file, opts)
		if err != nil {
			return nil, err
		}
		words = append(words, fromFile...)
	}
	return words, nil
}

// compute runs the configured path and reports which one produced m.
func (a *app) compute(words []string) (levenshtein.Matrix, string, error) {
	if !a.cfg.UseGPU {
		return levenshtein.ComputeCPU(words), "cpu", nil
	}

	capacity := max(a.cfg.Capacity, len(words))
	opts, err := a.sessionOptions()
	if err != nil {
		return levenshtein.Matrix{}, "", err
	}
	s, err := levenshtein.NewSession(capacity, opts...)
	if err != nil {
		if a.cfg.Fallback && (errors.Is(err, levenshtein.ErrDeviceUnavailable) ||
			errors.Is(err, levenshtein.ErrPipelineCompilationFailed)) {
			a.log.Warn("no device session, using CPU path", "err", err)
			return levenshtein.ComputeCPU(words), "cpu", nil
		}
		return levenshtein.Matrix{}, "", err
	}
	defer s.Close()

	m, err := s.Compute(words)
	if err != nil {
		return levenshtein.Matrix{}, "", err
	}
	return m, s.Device().Backend.String(), nil
}
