// Package template validates that a candidate ID photo shares the printed
// layout of the canonical PhilID card, using keypoint feature matching.
package template

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/id-check/internal/logging"
)

// matchThreshold is the minimum number of cross-checked keypoint matches
// (exclusive) for a candidate to count as structurally valid.
const matchThreshold = 50

var errUndecodable = errors.New("candidate image could not be decoded")

// Matcher compares candidate images against a fixed reference template. The
// template is decoded and normalized once at construction and read-only
// afterwards.
type Matcher struct {
	template  gocv.Mat
	threshold int
	logger    *zap.Logger
}

// NewMatcher loads the reference template from templatePath. An unreadable
// template is a configuration error and fails construction.
func NewMatcher(templatePath string, logger *zap.Logger) (*Matcher, error) {
	img := gocv.IMRead(templatePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("template image %q could not be read", templatePath)
	}

	return &Matcher{
		template:  normalizeIntensity(img),
		threshold: matchThreshold,
		logger:    logger.Named("template_matcher"),
	}, nil
}

// Validate reports whether imageBytes matches the reference layout. Feature
// detection is local and deterministic; the only error cases are undecodable
// image data.
func (m *Matcher) Validate(ctx context.Context, imageBytes []byte) (bool, error) {
	candidate, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return false, logging.NewOperationError("template.decode_candidate", "", err)
	}
	defer candidate.Close()
	if candidate.Empty() {
		return false, logging.NewOperationError("template.decode_candidate", "", errUndecodable)
	}

	normalized := normalizeIntensity(candidate)
	defer normalized.Close()

	count := m.matchCount(normalized)
	m.logger.Debug("keypoint matching done",
		zap.Int("matches", count),
		zap.Int("threshold", m.threshold))
	return structurallyValid(count, m.threshold), nil
}

// Close releases the cached template.
func (m *Matcher) Close() error {
	return m.template.Close()
}

// matchCount detects SIFT keypoints on the template and candidate and counts
// cross-checked nearest-neighbor descriptor matches. Cross-checking accepts a
// pair only when each descriptor is the other's best match in both
// directions.
func (m *Matcher) matchCount(candidate gocv.Mat) int {
	sift := gocv.NewSIFT()
	defer sift.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	_, templateDesc := sift.DetectAndCompute(m.template, mask)
	defer templateDesc.Close()
	_, candidateDesc := sift.DetectAndCompute(candidate, mask)
	defer candidateDesc.Close()

	if templateDesc.Empty() || candidateDesc.Empty() {
		return 0
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormL2, true)
	defer matcher.Close()

	return len(matcher.Match(templateDesc, candidateDesc))
}

// normalizeIntensity stretches the image intensity range to 0-255 to reduce
// lighting-induced variance in feature detection.
func normalizeIntensity(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Normalize(src, &dst, 0, 255, gocv.NormMinMax)
	return dst
}

// structurallyValid is the verdict rule: strictly more matches than the
// threshold.
func structurallyValid(count, threshold int) bool {
	return count > threshold
}
