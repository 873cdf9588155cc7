package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
)

func batch(total, failed int) *orchestration.BatchError {
	be := &orchestration.BatchError{Total: total}
	for i := range failed {
		be.Failures = append(be.Failures, &orchestration.UnitError{Unit: fmt.Sprintf("unit-%d", i), Err: errors.New("boom")})
	}
	return be
}

func TestRunError(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, runError(&out, nil))
	assert.Empty(t, out.String())

	assert.NoError(t, runError(&out, batch(3, 1)), "a batch with a successful unit completes the invocation")
	assert.Contains(t, out.String(), "1 of 3 unit(s) failed")
	assert.Contains(t, out.String(), "unit-0: boom")

	out.Reset()
	all := batch(2, 2)
	assert.Equal(t, error(all), runError(&out, all))
	assert.Empty(t, out.String())

	interrupted := &orchestration.BatchError{Total: 2, Failures: []*orchestration.UnitError{{Unit: "u", Err: context.Canceled}}}
	assert.ErrorIs(t, runError(&out, interrupted), context.Canceled)

	plain := errors.New("config error")
	assert.Equal(t, plain, runError(&out, plain))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitSuccess},
		{name: "partial run", err: runError(io.Discard, batch(4, 1)), want: ExitSuccess},
		{name: "wrapped partial run", err: runError(io.Discard, fmt.Errorf("prompt: %w", batch(4, 3))), want: ExitSuccess},
		{name: "every unit failed", err: runError(io.Discard, batch(2, 2)), want: ExitError},
		{name: "regular error", err: errors.New("config error"), want: ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestMergeFailures(t *testing.T) {
	early := []*orchestration.UnitError{{Unit: "bad.json -> mock:m", Err: errors.New("schema")}}

	assert.NoError(t, mergeFailures(2, nil, nil))

	err := mergeFailures(2, nil, early)
	var be *orchestration.BatchError
	assert.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Total)
	assert.Len(t, be.Failures, 1)
	assert.Equal(t, ExitSuccess, exitCode(runError(io.Discard, err)))

	err = mergeFailures(2, batch(2, 2), early)
	assert.ErrorAs(t, err, &be)
	assert.Equal(t, 3, be.Total)
	assert.Len(t, be.Failures, 3)
	assert.Equal(t, ExitError, exitCode(runError(io.Discard, err)))
}
