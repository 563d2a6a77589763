package message

import "fmt"

// Code is a stable, language-independent error tag. Clients preserve these
// on their sync context for observability; they never carry cryptographic
// detail (spec.md §7).
type Code string

const (
	// Snapshot verify/decrypt failures (spec.md §7, 101..199 family).
	ErrSnapshotSignatureInvalid Code = "SECSYNC_ERROR_101"
	ErrSnapshotParentProofMismatch Code = "SECSYNC_ERROR_102"
	ErrSnapshotDocIDMismatch Code = "SECSYNC_ERROR_103"
	ErrSnapshotMissedUpdates Code = "SECSYNC_ERROR_104"
	ErrSnapshotDecryptionFailed Code = "SECSYNC_ERROR_105"

	// Ephemeral message failures.
	ErrEphemeralDecryptionFailed Code = "SECSYNC_ERROR_21"
	ErrEphemeralNoValidSession   Code = "SECSYNC_ERROR_22"
	ErrEphemeralReplay           Code = "SECSYNC_ERROR_23"
	// ErrEphemeralInvalidClient tags any isValidClient rejection, not only
	// ones encountered while processing ephemeral messages (spec.md §7).
	ErrEphemeralInvalidClient Code = "SECSYNC_ERROR_24"
	ErrEphemeralUnknownType   Code = "SECSYNC_ERROR_25"
	ErrEphemeralDocIDMismatch    Code = "SECSYNC_ERROR_26"
	ErrEphemeralUnexpected       Code = "SECSYNC_ERROR_36"
	ErrEphemeralSignatureInvalid Code = "SECSYNC_ERROR_38"

	// Update verify/decrypt failures. spec.md only distinguishes 212-214;
	// signature invalid and AEAD tag mismatch are not told apart externally.
	ErrUpdateSignatureInvalid Code = "SECSYNC_ERROR_212"
	ErrUpdateWrongSnapshot    Code = "SECSYNC_ERROR_213"
	ErrUpdateClockMismatch    Code = "SECSYNC_ERROR_214"
)

// Error is the typed error every codec returns instead of an opaque error
// value, so the sync state machine can switch on Code without parsing
// strings.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

// NewError constructs a tagged *Error, exported so related packages (e.g.
// ephemeral's session/replay handling) can report rejections using the same
// SECSYNC_ERROR_* vocabulary without duplicating the Error type.
func NewError(code Code, cause error) *Error {
	return newError(code, cause)
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
