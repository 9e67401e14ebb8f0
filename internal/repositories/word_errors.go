package repositories

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a store reply that could not be interpreted.
var ErrMalformedResponse = errors.New("word store: malformed response")

// StoreError describes a non-success reply from the word store.
type StoreError struct {
	Op     string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: store returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: store returned %d: %s", e.Op, e.Status, e.Body)
}
