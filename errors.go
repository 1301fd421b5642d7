package levenshtein

import (
	"errors"

	"github.com/Milo4uk/levenshtein-distance/internal/codec"
)

// Errors returned by the package. Device-level failures wrap the underlying
// cause, so both errors.Is(err, ErrTransferFailed) and errors.Is on the
// device error hold.
var (
	// ErrWordTooLong is returned when a word has more runes than the padding
	// bound. The error chain also holds a *WordTooLongError.
	ErrWordTooLong = errors.New("levenshtein: word exceeds padding bound")

	// ErrDeviceUnavailable is returned when no compatible device can be
	// acquired for a session.
	ErrDeviceUnavailable = errors.New("levenshtein: no compute device available")

	// ErrPipelineCompilationFailed is returned when the distance kernel
	// cannot be compiled for the selected device.
	ErrPipelineCompilationFailed = errors.New("levenshtein: pipeline compilation failed")

	// ErrCapacityExceeded is returned when a batch is larger than the
	// session's capacity.
	ErrCapacityExceeded = errors.New("levenshtein: batch exceeds session capacity")

	// ErrTransferFailed is returned when upload, dispatch or readback fails
	// on the device. The session must be revalidated before reuse.
	ErrTransferFailed = errors.New("levenshtein: transfer failed")

	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("levenshtein: session is closed")

	// ErrSessionInvalid is returned by a session whose last transfer failed.
	ErrSessionInvalid = errors.New("levenshtein: session needs revalidation")

	// ErrInvalidPadding is returned for a padding bound outside 1..MaxPadding.
	ErrInvalidPadding = errors.New("levenshtein: invalid padding bound")
)

// WordTooLongError identifies the offending word by batch index, its rune
// count and the padding bound.
type WordTooLongError = codec.TooLongError
