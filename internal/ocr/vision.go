package ocr

import (
	"context"
	"errors"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/example/id-check/internal/logging"
)

// VisionEngine adapts the Google Cloud Vision image annotator to the Engine
// contract.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
	logger *zap.Logger
}

// NewVisionEngine dials the Vision API. Credentials come from
// credentialsFile when set, otherwise application default credentials.
func NewVisionEngine(ctx context.Context, credentialsFile string, logger *zap.Logger) (*VisionEngine, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("ocr.dial_vision", "", err)
		logger.Error("failed to create vision client", zap.Error(wrapped))
		return nil, wrapped
	}
	return &VisionEngine{client: client, logger: logger.Named("vision_engine")}, nil
}

// DetectText annotates the image with TEXT_DETECTION and returns the text
// annotations in API order.
func (e *VisionEngine) DetectText(ctx context.Context, imageBytes []byte) ([]TextBlock, error) {
	resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: imageBytes},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		wrapped := logging.NewOperationError("ocr.detect_text", "", err)
		e.logger.Error("text detection failed", zap.Error(wrapped))
		return nil, wrapped
	}

	blocks, err := textBlocksFromResponse(resp)
	if err != nil {
		wrapped := logging.NewOperationError("ocr.detect_text", "", err)
		e.logger.Error("text detection returned an annotation error", zap.Error(wrapped))
		return nil, wrapped
	}
	return blocks, nil
}

// textBlocksFromResponse unpacks the single-image batch response. A
// per-image annotation error counts as an engine failure, not as an image
// without text.
func textBlocksFromResponse(resp *visionpb.BatchAnnotateImagesResponse) ([]TextBlock, error) {
	responses := resp.GetResponses()
	if len(responses) == 0 {
		return nil, errors.New("vision returned no annotation responses")
	}

	annotated := responses[0]
	if s := annotated.GetError(); s != nil {
		return nil, fmt.Errorf("vision annotation error: %s", s.GetMessage())
	}

	annotations := annotated.GetTextAnnotations()
	blocks := make([]TextBlock, 0, len(annotations))
	for _, ann := range annotations {
		blocks = append(blocks, TextBlock{Text: ann.GetDescription(), Locale: ann.GetLocale()})
	}
	return blocks, nil
}

// Close releases the underlying gRPC connection.
func (e *VisionEngine) Close() error {
	return e.client.Close()
}
