package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// storeContextError marks a store call that hit the command deadline or was
// canceled, and remembers which call it was.
type storeContextError struct {
	Phase    string
	Kind     string
	Deadline *time.Time
	Err      error
}

func (e *storeContextError) Error() string {
	if e == nil {
		return "store error"
	}
	switch e.Kind {
	case "timeout":
		if e.Deadline != nil {
			return fmt.Sprintf("%s timed out after deadline %s: %v", e.Phase, e.Deadline.Format(time.RFC3339), e.Err)
		}
		return fmt.Sprintf("%s timed out: %v", e.Phase, e.Err)
	case "canceled":
		return fmt.Sprintf("%s canceled: %v", e.Phase, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *storeContextError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func annotateStoreError(ctx context.Context, phase string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		var dl *time.Time
		if deadline, ok := ctx.Deadline(); ok {
			deadline = deadline.UTC()
			dl = &deadline
		}
		return &storeContextError{Phase: phase, Kind: "timeout", Deadline: dl, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &storeContextError{Phase: phase, Kind: "canceled", Err: err}
	}
	return err
}

func storeErrorMeta(err error) map[string]any {
	var se *storeContextError
	if !errors.As(err, &se) || se == nil {
		return nil
	}
	meta := map[string]any{
		"phase": se.Phase,
		"kind":  se.Kind,
	}
	if se.Deadline != nil {
		meta["deadline"] = se.Deadline.Format(time.RFC3339)
	}
	return meta
}
