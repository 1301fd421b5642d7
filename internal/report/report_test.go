package report

import (
	"bytes"
	"encoding/json"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
)

var (
	testWords  = []string{"kitten", "kill", "bananas"}
	testMatrix = levenshtein.Matrix{N: 3, Values: []uint32{0, 4, 7, 4, 0, 7, 7, 7, 0}}
)

func TestGrid(t *testing.T) {
	out := Grid(testWords, testMatrix)
	lines := strings.Split(strings.TrimSpace(out), "\n")

	for _, w := range testWords {
		assert.Contains(t, out, w)
	}
	// Each matrix row is rendered on one line after its label.
	var kill string
	for _, l := range lines {
		if strings.Contains(l, "kill") && !strings.Contains(l, "kitten") {
			kill = l
		}
	}
	require.NotEmpty(t, kill, "no row for kill in\n%s", out)
	assert.Regexp(t, `kill\W+4\W+0\W+7`, kill)
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testWords, testMatrix))
	assert.Equal(t, "word_a,word_b,distance\nkitten,kill,4\nkitten,bananas,7\nkill,bananas,7\n", buf.String())
}

func TestCSV_QuotesFields(t *testing.T) {
	var buf bytes.Buffer
	words := []string{"a,b", `say "hi"`}
	m := levenshtein.ComputeCPU(words)
	require.NoError(t, WriteCSV(&buf, words, m))
	assert.Contains(t, buf.String(), `"a,b","say ""hi""",`)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testWords, testMatrix))

	var got jsonReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testWords, got.Words)
	assert.Equal(t, [][]uint32{{0, 4, 7}, {4, 0, 7}, {7, 7, 0}}, got.Matrix)
	assert.Len(t, got.Pairs, 3)
	assert.Equal(t, jsonPair{A: "kitten", B: "kill", Distance: 4}, got.Pairs[0])
}

func TestWrite(t *testing.T) {
	for _, format := range []string{FormatGrid, FormatCSV, FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, format, testWords, testMatrix), format)
		assert.NotEmpty(t, buf.String(), format)
	}
	assert.Error(t, Write(&bytes.Buffer{}, "xml", testWords, testMatrix))
}

func TestWriteGrid_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGrid(&buf, nil, levenshtein.Matrix{}))
	assert.Empty(t, buf.String())
}

func TestHeatmap(t *testing.T) {
	img := Heatmap(testWords, testMatrix)
	b := img.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	margin := b.Dx() - 3*heatmapCell

	center := func(i, j int) color.RGBA {
		return img.RGBAAt(margin+j*heatmapCell+heatmapCell/2, margin+i*heatmapCell+heatmapCell/2)
	}
	assert.Equal(t, heatmapBackground, center(0, 0), "diagonal is distance 0")
	assert.Equal(t, shade(7, 7), center(0, 2), "peak distance is darkest")
	assert.Equal(t, center(0, 1), center(1, 0), "symmetric cells match")
}

func TestSaveHeatmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heatmap.png")
	require.NoError(t, SaveHeatmap(path, testWords, testMatrix))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, Heatmap(testWords, testMatrix).Bounds(), img.Bounds())
}

func TestShade(t *testing.T) {
	assert.Equal(t, heatmapBackground, shade(0, 0))
	assert.Equal(t, heatmapBackground, shade(0, 5))
	assert.Equal(t, color.RGBA{R: 0x1f, G: 0x3a, B: 0x93, A: 0xff}, shade(5, 5))
}
