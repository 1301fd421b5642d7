// Package wordlist reads batches of words: whitespace-separated tokens from
// a reader, a file or command-line arguments.
package wordlist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/unicode/norm"
)

// Options controls how tokens become words.
type Options struct {
	// Normalize converts every word to Unicode NFC so that canonically
	// equivalent spellings (e + U+0301 and U+00E9) compare equal.
	Normalize bool
}

// Read returns the whitespace-separated tokens of r in order.
func Read(r io.Reader, opts Options) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	var words []string
	for sc.Scan() {
		words = append(words, prepare(sc.Text(), opts))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("wordlist: %w", err)
	}
	return words, nil
}

// ReadFile reads the words of the file at path.
func ReadFile(path string, opts Options) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the user
	if err != nil {
		return nil, fmt.Errorf("wordlist: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// FromArgs applies opts to words given directly, such as command-line
// arguments. Arguments are taken as-is, including empty ones.
func FromArgs(args []string, opts Options) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = prepare(a, opts)
	}
	return out
}

func prepare(w string, opts Options) string {
	if opts.Normalize {
		return norm.NFC.String(w)
	}
	return w
}
