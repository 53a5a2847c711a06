package journal

import "errors"

// Writer and reader sentinel errors, wrapped with fmt.Errorf("%w: ...")
// at the call site the way the teacher's freezer package does.
var (
	// ErrClosed indicates an operation on a writer or reader that has
	// already had Close called.
	ErrClosed = errors.New("journal: closed")
	// ErrReadOnly indicates a mutating call on a read-only reader.
	ErrReadOnly = errors.New("journal: read-only")
	// ErrSequence indicates append(entry) was called with a sequence that
	// does not equal next_expected.
	ErrSequence = errors.New("journal: sequence violation")
	// ErrSizeLimitExceeded indicates cumulative bytes would cross
	// max_total_size.
	ErrSizeLimitExceeded = errors.New("journal: size limit exceeded")
)
