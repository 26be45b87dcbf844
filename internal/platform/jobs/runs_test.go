package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBuildRunsBaseQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildRunsBaseQuery(RunFilter{JobType: " fiscal_refresh ", Status: "failed", StartedFrom: &from})
	for _, clause := range []string{"job_type = $1", "status = $2", "created_at >= $3"} {
		if !strings.Contains(query, clause) {
			t.Fatalf("expected %q in query %s", clause, query)
		}
	}
	if len(args) != 3 || args[0] != "fiscal_refresh" {
		t.Fatalf("unexpected args %v", args)
	}

	_, args = buildRunsBaseQuery(RunFilter{})
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestDecodeDetails(t *testing.T) {
	if got := decodeDetails(nil); len(got) != 0 {
		t.Fatalf("expected empty details, got %v", got)
	}
	if got := decodeDetails([]byte(`{"version":"2025-01"}`)); got["version"] != "2025-01" {
		t.Fatalf("expected version, got %v", got)
	}
	if got := decodeDetails([]byte("not json")); got["raw"] != "not json" {
		t.Fatalf("expected raw fallback, got %v", got)
	}
}

func TestRunByIDRejectsMalformedID(t *testing.T) {
	s := New(nil, zap.NewNop())
	if _, err := s.RunByID(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
