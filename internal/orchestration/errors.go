package orchestration

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoResponses is returned when a response file holds no records.
var ErrNoResponses = errors.New("no responses to score")

// UnitError is the failure of one unit of a batch: a Task×Model pair when
// forwarding, a response file when scoring.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// BatchError collects the failed units of a batch that ran to completion.
type BatchError struct {
	Total    int
	Failures []*UnitError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d of %d unit(s) failed: %s", len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// AllFailed reports whether no unit succeeded.
func (e *BatchError) AllFailed() bool {
	return len(e.Failures) >= e.Total
}

func batchError(total int, failures []*UnitError) error {
	var failed []*UnitError
	for _, f := range failures {
		if f != nil {
			failed = append(failed, f)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{Total: total, Failures: failed}
}
