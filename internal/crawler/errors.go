package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrPageNotFound is returned by page stores for unknown IDs.
	ErrPageNotFound = errors.New("page not found")
	// ErrFetchTimeout is returned when a fetch exceeds its deadline.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrEmbeddingInput is returned when texts would be rejected by the embedding model.
	ErrEmbeddingInput = errors.New("invalid embedding input")
)

// InvalidPageError marks a URL that will never produce indexable content.
type InvalidPageError struct {
	Reason string
}

func (e *InvalidPageError) Error() string {
	return e.Reason
}

// Invalidf builds an InvalidPageError with a formatted reason.
func Invalidf(format string, args ...any) error {
	return &InvalidPageError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidReason reports the invalidation reason carried anywhere in err's chain.
func InvalidReason(err error) (string, bool) {
	var invalid *InvalidPageError
	if errors.As(err, &invalid) {
		return invalid.Reason, true
	}
	return "", false
}

// ErrorChain flattens the messages of a wrapped error, outermost first.
func ErrorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
