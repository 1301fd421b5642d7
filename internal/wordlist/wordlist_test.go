package wordlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	words, err := Read(strings.NewReader("kitten  sitting\n\tbook\r\nback\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"kitten", "sitting", "book", "back"}, words)
}

func TestRead_Empty(t *testing.T) {
	words, err := Read(strings.NewReader(" \n\t "), Options{})
	require.NoError(t, err)
	assert.Empty(t, words)
}

func TestRead_Normalize(t *testing.T) {
	decomposed := "cafe\u0301"
	words, err := Read(strings.NewReader(decomposed+" caf\u00e9"), Options{Normalize: true})
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, words[1], words[0])

	raw, err := Read(strings.NewReader(decomposed), Options{})
	require.NoError(t, err)
	assert.Equal(t, decomposed, raw[0])
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("intention execution\ndevelopment deployment\n"), 0o600))

	words, err := ReadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"intention", "execution", "development", "deployment"}, words)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"), Options{})
	assert.Error(t, err)
}

func TestFromArgs(t *testing.T) {
	got := FromArgs([]string{"", "cafe\u0301"}, Options{Normalize: true})
	assert.Equal(t, []string{"", "caf\u00e9"}, got)
}
