package browser

import (
	"errors"
	"fmt"
)

// ErrCollection marks every failure to obtain an observation from a page.
var ErrCollection = errors.New("browser: collection failed")

// CollectionError wraps the cause of a failed observation.
// errors.Is(err, ErrCollection) and errors.Is(err, cause) both hold.
type CollectionError struct {
	Op  string // observe, replay, containers, session
	URL string
	Err error
}

func (e *CollectionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("browser: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("browser: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *CollectionError) Unwrap() []error {
	return []error{ErrCollection, e.Err}
}

func collectionErr(op, url string, err error) error {
	if err == nil {
		return nil
	}
	return &CollectionError{Op: op, URL: url, Err: err}
}
