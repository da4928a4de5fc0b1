package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agis/consultcal/internal/store"
)

func TestStoreErrorMetaFromDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := annotateStoreError(ctx, "store.list_tasks", context.DeadlineExceeded)
	meta := storeErrorMeta(err)
	if meta == nil {
		t.Fatalf("expected metadata for annotated timeout")
	}
	if meta["phase"] != "store.list_tasks" || meta["kind"] != "timeout" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if _, ok := meta["deadline"]; !ok {
		t.Fatalf("expected deadline in metadata: %+v", meta)
	}
}

func TestStoreErrorMetaNilForGenericError(t *testing.T) {
	if meta := storeErrorMeta(context.Canceled); meta != nil {
		t.Fatalf("did not expect metadata for unannotated error: %+v", meta)
	}
}

func TestStoreContextErrorMessageContainsPhase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := annotateStoreError(ctx, "store.add_task", context.DeadlineExceeded)
	if !strings.Contains(err.Error(), "store.add_task timed out") {
		t.Fatalf("expected phase-aware message, got: %q", err.Error())
	}
}

func TestAnnotateKeepsNotFound(t *testing.T) {
	err := annotateStoreError(context.Background(), "store.get_task", store.ErrNotFound)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound to pass through, got %v", err)
	}
}
