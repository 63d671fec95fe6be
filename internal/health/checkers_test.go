package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mbd888/walletrisk/internal/report"
)

type errStore struct {
	*report.MemoryStore
}

func (errStore) LatestRun(context.Context) (*report.Run, error) {
	return nil, errors.New("connection reset")
}

func TestRunFreshnessChecker(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := report.NewMemoryStore()
	check := RunFreshnessChecker(store, time.Hour, clock)

	st := check(context.Background())
	if !st.Healthy || st.Detail != "no runs yet" {
		t.Fatalf("empty store: got %+v", st)
	}

	run := &report.Run{ID: "run-1", Status: report.StatusOK, CompletedAt: now.Add(-30 * time.Minute)}
	if err := store.SaveRun(context.Background(), run, nil); err != nil {
		t.Fatal(err)
	}
	st = check(context.Background())
	if !st.Healthy {
		t.Fatalf("fresh run should be healthy: %+v", st)
	}
	if st.Name != "scoring" {
		t.Fatalf("expected name scoring, got %q", st.Name)
	}

	now = now.Add(2 * time.Hour)
	st = check(context.Background())
	if st.Healthy {
		t.Fatal("stale run should be unhealthy")
	}
	if !strings.Contains(st.Detail, "run-1") {
		t.Fatalf("detail should name the run, got %q", st.Detail)
	}
}

func TestRunFreshnessCheckerStoreError(t *testing.T) {
	check := RunFreshnessChecker(errStore{report.NewMemoryStore()}, time.Hour, nil)
	st := check(context.Background())
	if st.Healthy {
		t.Fatal("store error should be unhealthy")
	}
	if st.Detail != "connection reset" {
		t.Fatalf("unexpected detail %q", st.Detail)
	}
}
