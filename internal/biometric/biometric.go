// Package biometric wraps the face-similarity collaborator and folds its
// output into a single match decision.
package biometric

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/id-check/internal/logging"
)

// FaceMatch is one matched-face entry reported by the engine. Similarity is a
// percentage in [0, 100].
type FaceMatch struct {
	Similarity float64
}

// Engine compares the face in source against faces in target and returns the
// matched entries. An empty slice is a valid "no match" answer; an error
// means the engine itself failed.
type Engine interface {
	CompareFaces(ctx context.Context, source, target []byte) ([]FaceMatch, error)
}

// FaceMatchResult is the comparator's verdict: whether any face matched and
// the highest similarity observed.
type FaceMatchResult struct {
	IsMatch    bool
	Similarity float64
}

// Comparator turns raw engine output into a FaceMatchResult.
type Comparator struct {
	engine Engine
	logger *zap.Logger
}

// NewComparator constructs a comparator over the given engine.
func NewComparator(engine Engine, logger *zap.Logger) *Comparator {
	return &Comparator{engine: engine, logger: logger.Named("face_comparator")}
}

// Compare runs the engine with the ID photo as source and the selfie as
// target. IsMatch is true iff at least one matched face came back;
// Similarity is the maximum across entries, zero when none matched.
func (c *Comparator) Compare(ctx context.Context, idImage, selfie []byte) (FaceMatchResult, error) {
	matches, err := c.engine.CompareFaces(ctx, idImage, selfie)
	if err != nil {
		wrapped := logging.NewOperationError("biometric.compare_faces", "", err)
		c.logger.Error("face comparison failed", zap.Error(wrapped))
		return FaceMatchResult{}, wrapped
	}

	result := FaceMatchResult{IsMatch: len(matches) > 0}
	for _, m := range matches {
		if m.Similarity > result.Similarity {
			result.Similarity = m.Similarity
		}
	}
	return result, nil
}
