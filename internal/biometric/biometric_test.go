package biometric

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/example/id-check/internal/logging"
)

type stubEngine struct {
	matches []FaceMatch
	err     error
}

func (s *stubEngine) CompareFaces(ctx context.Context, source, target []byte) ([]FaceMatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func TestCompareNoMatchesMeansNoMatch(t *testing.T) {
	comparator := NewComparator(&stubEngine{}, zap.NewNop())

	result, err := comparator.Compare(context.Background(), []byte("id"), []byte("selfie"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.IsMatch {
		t.Fatal("expected no match for an empty result set")
	}
	if result.Similarity != 0 {
		t.Fatalf("expected zero similarity, got %f", result.Similarity)
	}
}

func TestCompareSelectsMaximumSimilarity(t *testing.T) {
	engine := &stubEngine{matches: []FaceMatch{
		{Similarity: 55.5},
		{Similarity: 97.345},
		{Similarity: 80.0},
	}}
	comparator := NewComparator(engine, zap.NewNop())

	result, err := comparator.Compare(context.Background(), []byte("id"), []byte("selfie"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !result.IsMatch {
		t.Fatal("expected a match")
	}
	if result.Similarity != 97.345 {
		t.Fatalf("expected the maximum similarity, got %f", result.Similarity)
	}
}

func TestCompareWrapsEngineFailure(t *testing.T) {
	comparator := NewComparator(&stubEngine{err: errors.New("transport failure")}, zap.NewNop())

	_, err := comparator.Compare(context.Background(), []byte("id"), []byte("selfie"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "biometric.compare_faces" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}
