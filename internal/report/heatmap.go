package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
)

// Heatmap layout in pixels.
const (
	heatmapCell     = 24
	heatmapMaxLabel = 16 // runes shown per label
)

var (
	heatmapBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	heatmapText       = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

// Heatmap draws the matrix as a grid of cells shaded from white (distance
// 0) to dark blue (largest distance in the matrix), with word labels along
// the top and left edges.
func Heatmap(words []string, m levenshtein.Matrix) *image.RGBA {
	face := basicfont.Face7x13
	labelWidth := 0
	for _, w := range words {
		labelWidth = max(labelWidth, font.MeasureString(face, truncate(w)).Ceil())
	}
	margin := labelWidth + 8
	size := margin + m.N*heatmapCell

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(heatmapBackground), image.Point{}, draw.Src)

	var peak uint32
	for _, v := range m.Values {
		peak = max(peak, v)
	}

	for i := 0; i < m.N; i++ {
		for j := 0; j < m.N; j++ {
			x, y := margin+j*heatmapCell, margin+i*heatmapCell
			cell := image.Rect(x, y, x+heatmapCell-1, y+heatmapCell-1)
			draw.Draw(img, cell, image.NewUniform(shade(m.At(i, j), peak)), image.Point{}, draw.Src)
		}
	}

	d := &font.Drawer{Dst: img, Src: image.NewUniform(heatmapText), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	for i, w := range words {
		label := truncate(w)
		// Row labels, right-aligned against the grid.
		lw := font.MeasureString(face, label).Ceil()
		d.Dot = fixed.P(margin-4-lw, margin+i*heatmapCell+(heatmapCell+ascent)/2-1)
		d.DrawString(label)
		// Column labels: the first runes that fit above the cell.
		d.Dot = fixed.P(margin+i*heatmapCell+2, margin-4)
		d.DrawString(clip(label, heatmapCell/7))
	}
	return img
}

// WriteHeatmap encodes the heatmap as PNG.
func WriteHeatmap(w io.Writer, words []string, m levenshtein.Matrix) error {
	if err := png.Encode(w, Heatmap(words, m)); err != nil {
		return fmt.Errorf("report: encode heatmap: %w", err)
	}
	return nil
}

// SaveHeatmap writes the heatmap PNG to path.
func SaveHeatmap(path string, words []string, m levenshtein.Matrix) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("report: %w", cerr)
		}
	}()
	return WriteHeatmap(f, words, m)
}

// shade maps 0..peak onto white..dark blue.
func shade(v, peak uint32) color.RGBA {
	if peak == 0 {
		return heatmapBackground
	}
	t := float64(v) / float64(peak)
	return color.RGBA{
		R: uint8(255 - t*(255-0x1f)), //nolint:gosec // t in [0,1]
		G: uint8(255 - t*(255-0x3a)), //nolint:gosec // t in [0,1]
		B: uint8(255 - t*(255-0x93)), //nolint:gosec // t in [0,1]
		A: 0xff,
	}
}

func truncate(w string) string {
	return clip(w, heatmapMaxLabel)
}

func clip(w string, n int) string {
	r := []rune(w)
	if len(r) <= n {
		return w
	}
	return string(r[:n])
}
