package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/id-check/internal/auth"
	"github.com/example/id-check/internal/repository"
	"github.com/example/id-check/internal/verification"
)

const testJWTSecret = "test-secret"

type stubService struct {
	verdict     *verification.Verdict
	verifyErr   error
	verifyCalls int
	record      *repository.IDRecord
	recordErr   error
	summary     *verification.MetricsSummary
	summaryErr  error
}

func (s *stubService) Verify(ctx context.Context, idImage, selfie []byte) (*verification.Verdict, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verdict, nil
}

func (s *stubService) GetRecord(ctx context.Context, idNumber string) (*repository.IDRecord, error) {
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return s.record, nil
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*verification.MetricsSummary, error) {
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	return s.summary, nil
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, auth.JWTMiddleware(testJWTSecret, ""))
	return router
}

type filePart struct {
	field       string
	contentType string
	payload     []byte
}

func buildMultipartBody(t *testing.T, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="upload"`)
		header.Set("Content-Type", p.contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create multipart part: %v", err)
		}
		if _, err := part.Write(p.payload); err != nil {
			t.Fatalf("failed to write payload: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func doValidate(t *testing.T, router *gin.Engine, parts ...filePart) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := buildMultipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "operator-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestValidateRequiresAuth(t *testing.T) {
	router := newTestRouter(&stubService{})

	body, contentType := buildMultipartBody(t,
		filePart{field: "id_image", contentType: "image/jpeg", payload: []byte("id")},
		filePart{field: "selfie_image", contentType: "image/jpeg", payload: []byte("selfie")},
	)
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestValidateRejectsMissingSelfie(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "image/jpeg", payload: []byte("id")},
	)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if svc.verifyCalls != 0 {
		t.Fatal("expected the pipeline not to run")
	}
}

func TestValidateRejectsOversizedUpload(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "image/jpeg", payload: bytes.Repeat([]byte("a"), MaxUploadSize+1)},
		filePart{field: "selfie_image", contentType: "image/jpeg", payload: []byte("selfie")},
	)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestValidateRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "text/plain", payload: []byte("hello")},
		filePart{field: "selfie_image", contentType: "image/jpeg", payload: []byte("selfie")},
	)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestValidateReturnsSuccessPayload(t *testing.T) {
	svc := &stubService{verdict: &verification.Verdict{
		Accepted: true,
		Identity: &verification.VerifiedIdentity{
			IDNumber:     "1234-5678-9012-3456",
			FirstName:    "JUAN MIGUEL",
			LastName:     "DELA CRUZ",
			DateOfBirth:  "JANUARY 15, 1995",
			IsSamePerson: "True",
			Similarity:   "97.35%",
		},
	}}
	router := newTestRouter(svc)

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "image/jpeg", payload: []byte("id")},
		filePart{field: "selfie_image", contentType: "image/png", payload: []byte("selfie")},
	)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	var payload struct {
		Status string                        `json:"status"`
		Data   verification.VerifiedIdentity `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "Success" {
		t.Fatalf("expected Success, got %q", payload.Status)
	}
	if payload.Data.Similarity != "97.35%" || payload.Data.IsSamePerson != "True" {
		t.Fatalf("unexpected enrichment: %+v", payload.Data)
	}
}

func TestValidateReturnsFailedVerdictAsBusinessOutcome(t *testing.T) {
	svc := &stubService{verdict: &verification.Verdict{
		Reason:  verification.ReasonFaceMismatch,
		Message: "Face mismatch between ID and selfie.",
	}}
	router := newTestRouter(svc)

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "image/jpeg", payload: []byte("id")},
		filePart{field: "selfie_image", contentType: "image/jpeg", payload: []byte("selfie")},
	)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected a 200 business outcome, got %d", resp.Code)
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "Failed" {
		t.Fatalf("expected Failed, got %q", payload.Status)
	}
	if payload.Message != "Face mismatch between ID and selfie." {
		t.Fatalf("unexpected message: %q", payload.Message)
	}
}

func TestValidateReturnsErrorOnPipelineFault(t *testing.T) {
	svc := &stubService{verifyErr: errors.New("rekognition timeout")}
	router := newTestRouter(svc)

	resp := doValidate(t, router,
		filePart{field: "id_image", contentType: "image/jpeg", payload: []byte("id")},
		filePart{field: "selfie_image", contentType: "image/jpeg", payload: []byte("selfie")},
	)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "Error" {
		t.Fatalf("expected Error, got %q", payload.Status)
	}
}

func TestGetRecordReturnsStoredRow(t *testing.T) {
	svc := &stubService{record: &repository.IDRecord{
		IDNumber:     "1234-5678-9012-3456",
		FirstName:    "JUAN MIGUEL",
		LastName:     "DELA CRUZ",
		FaceMatch:    true,
		MatchPercent: 97.345,
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/records/1234-5678-9012-3456", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "operator-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	var payload struct {
		IDNumber  string `json:"id_number"`
		FaceMatch bool   `json:"face_match"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.IDNumber != "1234-5678-9012-3456" || !payload.FaceMatch {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	svc := &stubService{recordErr: errors.New("record not found")}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/records/0000-0000-0000-0000", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "operator-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}
