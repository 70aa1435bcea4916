package recordstore

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// ExecError is an execution failure the adapter has already classified.
type ExecError struct {
	Kind   models.ErrorKind
	Field  string
	Entity string
	Cause  error
}

func (e *ExecError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: field %q: %v", e.Kind, e.Field, e.Cause)
	case e.Entity != "":
		return fmt.Sprintf("%s: entity %q: %v", e.Kind, e.Entity, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

// CheckReadOnly refuses anything but a single read statement before it
// reaches the database.
func CheckReadOnly(query string) error {
	if result := sql.ValidateReadOnly(query); result.Error != nil {
		return &ExecError{
			Kind:  models.ErrorKindPlanRejected,
			Cause: fmt.Errorf("%w: %v", apperrors.ErrReadOnlyViolation, result.Error),
		}
	}
	return nil
}
