package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAlreadySubmitted  = errors.New("order already submitted from this session")
	ErrActionDisabled    = errors.New("action is disabled for this order")
	ErrDeclined          = errors.New("confirmation declined")
	ErrNoRequiredSection = errors.New("order has no required production section")
)

// ValidationError lists failing form fields, keyed by "<form>.<field>"
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid slip form: " + strings.Join(parts, "; ")
}

// StepError aborts a submission chain. Completed holds the steps that already
// succeeded; nothing is rolled back on the client side.
type StepError struct {
	Step      StepKind
	Completed []StepResult
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %s failed after %d completed step(s): %v", e.Step, len(e.Completed), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TransitionError rejects a lifecycle move
type TransitionError struct {
	From Stage
	To   Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from stage %q to %q", e.From, e.To)
}
