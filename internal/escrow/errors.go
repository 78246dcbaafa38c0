package escrow

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entry lookup finds no matching record.
var ErrNotFound = errors.New("escrow entry not found")

// ValidationError reports a rejected create input. It is returned before
// any hash computation or storage work happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError reports a release attempted on an entry that is not
// pending. Status names the entry's current state.
type InvalidStateError struct {
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("entry is %s, only pending entries can be released", e.Status)
}
