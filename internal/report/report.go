// Package report renders distance matrices: an aligned grid for terminals,
// CSV and JSON for export, and a PNG heatmap.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
)

// Formats accepted by Write.
const (
	FormatGrid = "grid"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	diagonalStyle = cellStyle.Foreground(lipgloss.Color("#666666"))
	labelStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// Write renders m in the named format.
func Write(w io.Writer, format string, words []string, m levenshtein.Matrix) error {
	switch format {
	case FormatGrid, "":
		return WriteGrid(w, words, m)
	case FormatCSV:
		return WriteCSV(w, words, m)
	case FormatJSON:
		return WriteJSON(w, words, m)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

// Grid returns the matrix as a table with the words as row and column
// labels.
func Grid(words []string, m levenshtein.Matrix) string {
	headers := make([]string, 0, m.N+1)
	headers = append(headers, "")
	headers = append(headers, words...)

	rows := make([][]string, m.N)
	for i := range rows {
		row := make([]string, 0, m.N+1)
		row = append(row, words[i])
		for _, d := range m.Row(i) {
			row = append(row, strconv.FormatUint(uint64(d), 10))
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return labelStyle
			case row == col-1:
				return diagonalStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}

// WriteGrid writes Grid(words, m) followed by a newline.
func WriteGrid(w io.Writer, words []string, m levenshtein.Matrix) error {
	if m.N == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, Grid(words, m))
	return err
}

// WriteCSV writes a header and one (word_a, word_b, distance) record per
// pair i < j.
func WriteCSV(w io.Writer, words []string, m levenshtein.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"word_a", "word_b", "distance"}); err != nil {
		return err
	}
	for _, p := range m.Pairs(words) {
		if err := cw.Write([]string{p.A, p.B, strconv.FormatUint(uint64(p.Distance), 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonPair struct {
	A        string `json:"word_a"`
	B        string `json:"word_b"`
	Distance uint32 `json:"distance"`
}

type jsonReport struct {
	Words  []string   `json:"words"`
	Matrix [][]uint32 `json:"matrix"`
	Pairs  []jsonPair `json:"pairs"`
}

// WriteJSON writes the words, the full matrix as nested rows and the
// upper-triangle pairs.
func WriteJSON(w io.Writer, words []string, m levenshtein.Matrix) error {
	r := jsonReport{
		Words:  words,
		Matrix: make([][]uint32, m.N),
		Pairs:  make([]jsonPair, 0, len(words)),
	}
	if r.Words == nil {
		r.Words = []string{}
	}
	for i := range r.Matrix {
		r.Matrix[i] = m.Row(i)
	}
	for _, p := range m.Pairs(words) {
		r.Pairs = append(r.Pairs, jsonPair{A: p.A, B: p.B, Distance: p.Distance})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
