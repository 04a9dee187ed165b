package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/siteline/internal/core/domain"
)

func TestStoreCallRetriesConnectionErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.BackoffBase = time.Millisecond
	c := New(cfg)
	calls := 0

	out := ExecuteStoreCall(context.Background(), c,
		domain.ErrorContext{Service: "postgres", Operation: "load_profile"},
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection refused")
			}
			return 42, nil
		})

	if !out.Success || out.Data != 42 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestStoreCallSurfacesUniqueViolation(t *testing.T) {
	c := New(fastConfig())
	calls := 0

	out := ExecuteStoreCall(context.Background(), c,
		domain.ErrorContext{Service: "postgres", Operation: "save_profile"},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("duplicate key violates unique constraint")
		})

	if out.Success {
		t.Fatal("constraint violations must surface as failures")
	}
	if out.Applied != "" {
		t.Errorf("no strategy should be applied to a terminal error, got %q", out.Applied)
	}
	if calls != 1 {
		t.Errorf("unique violations are terminal, calls = %d", calls)
	}
	if out.Err == nil {
		t.Error("error must be set on a surfaced failure")
	}
}

func TestStoreCallDegradesOnExhaustedTransientErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.BackoffBase = time.Millisecond
	c := New(cfg)
	calls := 0

	out := ExecuteStoreCall(context.Background(), c,
		domain.ErrorContext{Service: "postgres", Operation: "load_profile"},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("connection refused")
		})

	if !out.Success {
		t.Fatal("exhausted transient failures must degrade to the zero value")
	}
	if out.Data != 0 || out.Applied != domain.StrategyFallback {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (full retry loop)", calls)
	}
	if out.Err == nil {
		t.Error("last error must stay visible on a degraded outcome")
	}
}
