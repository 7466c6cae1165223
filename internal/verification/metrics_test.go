package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/example/id-check/internal/repository"
)

func TestGetMetricsSummaryComputesMatchRate(t *testing.T) {
	store := &stubStore{agg: &repository.MetricsAggregation{
		TotalCount:          8,
		MatchedCount:        6,
		AverageMatchPercent: 91.25,
	}}
	svc := newTestService(&stubExtractor{}, &stubComparator{}, &stubValidator{}, store, &stubCache{})

	summary, err := svc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if summary.TotalRecords != 8 || summary.FaceMatches != 6 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.MatchRate != 0.75 {
		t.Fatalf("expected match rate 0.75, got %f", summary.MatchRate)
	}
	if summary.AverageMatchPercent != 91.25 {
		t.Fatalf("expected average 91.25, got %f", summary.AverageMatchPercent)
	}
}

func TestGetMetricsSummaryEmptyStore(t *testing.T) {
	svc := newTestService(&stubExtractor{}, &stubComparator{}, &stubValidator{}, &stubStore{}, &stubCache{})

	summary, err := svc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if summary.MatchRate != 0 {
		t.Fatalf("expected zero match rate for an empty store, got %f", summary.MatchRate)
	}
}

func TestGetMetricsSummaryPropagatesStoreError(t *testing.T) {
	store := &stubStore{aggErr: errors.New("query failed")}
	svc := newTestService(&stubExtractor{}, &stubComparator{}, &stubValidator{}, store, &stubCache{})

	if _, err := svc.GetMetricsSummary(context.Background()); err == nil {
		t.Fatal("expected an error, got nil")
	}
}
