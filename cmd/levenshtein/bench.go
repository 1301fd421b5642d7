package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
)

// benchSets are the batches timed by the bench command.
var benchSets = map[string][]string{
	"small":  {"kitten", "sitting", "book", "back"},
	"medium": {"intention", "execution", "development", "deployment"},
	"large": {
		"pneumonoultramicroscopicsilicovolcanoconiosis",
		"pneumonoultramicroscopicsilicovolcanoconioses",
		"pseudopseudohypoparathyroidism",
		"supercalifragilisticexpialidocious",
	},
}

var benchOrder = []string{"small", "medium", "large"}

type benchResult struct {
	set       string
	words     int
	cpu       time.Duration
	session   time.Duration
	backend   string
	sessErr   error
	identical bool
}

func (a *app) benchCmd() *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:       "bench [small|medium|large|all]",
		Short:     "Time the CPU path against a device session",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: append([]string{"all"}, benchOrder...),
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}
			sets := benchOrder
			if which != "all" {
				if _, ok := benchSets[which]; !ok {
					return fmt.Errorf("unknown benchmark set %q", which)
				}
				sets = []string{which}
			}
			if iterations < 1 {
				return fmt.Errorf("iterations must be positive, got %d", iterations)
			}

			results := make([]benchResult, 0, len(sets))
			for _, name := range sets {
				results = append(results, a.runBench(name, benchSets[name], iterations))
			}
			fmt.Fprintln(cmd.OutOrStdout(), benchTable(results))
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 100, "Iterations per measurement")
	return cmd
}

func (a *app) runBench(name string, words []string, iterations int) benchResult {
	r := benchResult{set: name, words: len(words)}

	var want levenshtein.Matrix
	start := time.Now()
	for range iterations {
		want = levenshtein.ComputeCPU(words)
	}
	r.cpu = time.Since(start) / time.Duration(iterations)

	opts, err := a.sessionOptions()
	if err != nil {
		r.sessErr = err
		return r
	}
	s, err := levenshtein.NewSession(len(words), opts...)
	if err != nil {
		r.sessErr = err
		return r
	}
	defer s.Close()
	r.backend = s.Device().Backend.String()

	var got levenshtein.Matrix
	start = time.Now()
	for range iterations {
		if got, err = s.Compute(words); err != nil {
			r.sessErr = err
			return r
		}
	}
	r.session = time.Since(start) / time.Duration(iterations)
	r.identical = got.Equal(want)
	return r
}

func benchTable(results []benchResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		session, backend, match := r.session.String(), r.backend, "yes"
		if r.sessErr != nil {
			session, backend, match = "error", r.sessErr.Error(), "-"
		} else if !r.identical {
			match = "NO"
		}
		rows = append(rows, []string{r.set, fmt.Sprint(r.words), r.cpu.String(), session, backend, match})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("set", "words", "cpu/op", "session/op", "backend", "identical").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}
