package ocr

import (
	"strings"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
)

func TestTextBlocksFromResponsePreservesOrder(t *testing.T) {
	resp := &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			TextAnnotations: []*visionpb.EntityAnnotation{
				{Description: "PAMBANSANG PAGKAKAKILANLAN\n1234-5678-9012-3456", Locale: "fil"},
				{Description: "PAMBANSANG"},
				{Description: "1234-5678-9012-3456"},
			},
		}},
	}

	blocks, err := textBlocksFromResponse(resp)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if !strings.HasPrefix(blocks[0].Text, "PAMBANSANG PAGKAKAKILANLAN") {
		t.Fatalf("expected the full transcript first, got %q", blocks[0].Text)
	}
	if blocks[0].Locale != "fil" {
		t.Fatalf("unexpected locale: %q", blocks[0].Locale)
	}
	if blocks[2].Text != "1234-5678-9012-3456" {
		t.Fatalf("expected annotation order to be preserved, got %q", blocks[2].Text)
	}
}

func TestTextBlocksFromResponseSurfacesAnnotationError(t *testing.T) {
	resp := &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			Error: &rpcstatus.Status{Code: 3, Message: "image decoding failed"},
		}},
	}

	if _, err := textBlocksFromResponse(resp); err == nil {
		t.Fatal("expected an error for a failed annotation")
	} else if !strings.Contains(err.Error(), "image decoding failed") {
		t.Fatalf("expected the annotation message to be surfaced, got: %v", err)
	}
}

func TestTextBlocksFromResponseRequiresAResponse(t *testing.T) {
	if _, err := textBlocksFromResponse(&visionpb.BatchAnnotateImagesResponse{}); err == nil {
		t.Fatal("expected an error for an empty batch response")
	}
}
