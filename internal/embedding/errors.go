package embedding

import "fmt"

// Error is returned by every embedding failure. It names the provider and
// model so a caller can tell which collaborator broke.
type Error struct {
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
