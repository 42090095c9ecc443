package relation

import (
	"errors"
	"fmt"

	"github.com/l7mp/liverel/pkg/event"
	"github.com/l7mp/liverel/pkg/retain"
)

var (
	// ErrIdentityConflict means a tuple with the same id is already a member of the set.
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrNotAMember means the tuple is not a member of the collection.
	ErrNotAMember = errors.New("not a member")
	// ErrNotRetained means live state was requested from a relation that is not activated.
	ErrNotRetained = errors.New("relation must be retained")
	// ErrUnknownAttribute means the attribute or collection is not defined where it was looked up.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrUnsupportedOperation means the relation does not support the operation, e.g., merging
	// into a join.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrInvalidValue means a value cannot be converted to an attribute type, or two values cannot
	// be compared.
	ErrInvalidValue = errors.New("invalid value")

	// ErrRetainerConflict is re-exported from the retain package.
	ErrRetainerConflict = retain.ErrRetainerConflict
	// ErrRecursionLimit is re-exported from the event package.
	ErrRecursionLimit = event.ErrRecursionLimit
)

func newError(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
