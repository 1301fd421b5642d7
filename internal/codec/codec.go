// Package codec converts batches of words into the fixed-width, zero-padded
// code layout shared by the CPU and device paths.
//
// Every word occupies exactly padding codes. A real character r is stored as
// uint32(r)+1, so the value 0 is reserved for padding and can never collide
// with a character of the word, NUL included.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Sentinel is the code stored in padding positions.
const Sentinel uint32 = 0

// MaxCode is the largest code a real character can encode to.
const MaxCode = uint32(utf8.MaxRune) + 1

// ErrTooLong is matched by every *TooLongError.
var ErrTooLong = errors.New("codec: word exceeds padding bound")

// ErrInvalidPadding is returned when the padding bound is not positive.
var ErrInvalidPadding = errors.New("codec: padding bound must be positive")

// TooLongError reports the first word of a batch that does not fit the
// padding bound.
type TooLongError struct {
	Index  int // position in the batch
	Length int // rune count
	Bound  int // padding bound
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("codec: word %d has %d characters, padding bound is %d", e.Index, e.Length, e.Bound)
}

// Is reports whether target is ErrTooLong.
func (e *TooLongError) Is(target error) bool { return target == ErrTooLong }

// Validate checks every word against the padding bound without encoding.
func Validate(words []string, padding int) error {
	if padding <= 0 {
		return ErrInvalidPadding
	}
	for i, w := range words {
		if n := utf8.RuneCountInString(w); n > padding {
			return &TooLongError{Index: i, Length: n, Bound: padding}
		}
	}
	return nil
}

// Encode returns len(words)*padding codes: each word's character codes
// followed by Sentinel up to padding. The whole batch is validated before
// anything is written.
func Encode(words []string, padding int) ([]uint32, error) {
	if err := Validate(words, padding); err != nil {
		return nil, err
	}
	out := make([]uint32, len(words)*padding)
	for i, w := range words {
		dst := out[i*padding : (i+1)*padding]
		k := 0
		for _, r := range w {
			dst[k] = CodeOf(r)
			k++
		}
	}
	return out, nil
}

// CodeOf returns the code for a single character. Invalid UTF-8 sequences
// arrive here as utf8.RuneError and share its code, matching the CPU path.
func CodeOf(r rune) uint32 {
	return uint32(r) + 1 //nolint:gosec // runes are non-negative after range decoding
}

// Length returns the number of real characters in one encoded word.
// Padding is always a suffix, so this is the count of non-sentinel codes.
func Length(word []uint32) int {
	n := 0
	for _, c := range word {
		if c != Sentinel {
			n++
		}
	}
	return n
}

// Bytes packs codes as little-endian uint32 for device upload.
func Bytes(codes []uint32) []byte {
	out := make([]byte, len(codes)*4)
	for i, c := range codes {
		binary.LittleEndian.PutUint32(out[i*4:], c)
	}
	return out
}

// Decode unpacks little-endian uint32 values. Trailing bytes that do not form
// a whole value are ignored.
func Decode(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
