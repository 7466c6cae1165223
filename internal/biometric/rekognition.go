package biometric

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/example/id-check/internal/logging"
)

// RekognitionEngine adapts AWS Rekognition CompareFaces to the Engine
// contract.
type RekognitionEngine struct {
	client *rekognition.Client
	logger *zap.Logger
}

// NewRekognitionEngine builds the engine from a resolved AWS config.
func NewRekognitionEngine(cfg aws.Config, logger *zap.Logger) *RekognitionEngine {
	return &RekognitionEngine{
		client: rekognition.NewFromConfig(cfg),
		logger: logger.Named("rekognition_engine"),
	}
}

func (e *RekognitionEngine) CompareFaces(ctx context.Context, source, target []byte) ([]FaceMatch, error) {
	out, err := e.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage: &types.Image{Bytes: source},
		TargetImage: &types.Image{Bytes: target},
	})
	if err != nil {
		wrapped := logging.NewOperationError("biometric.rekognition_compare", "", err)
		e.logger.Error("rekognition call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	matches := make([]FaceMatch, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		matches = append(matches, FaceMatch{Similarity: float64(aws.ToFloat32(m.Similarity))})
	}
	return matches, nil
}
