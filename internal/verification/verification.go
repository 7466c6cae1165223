// Package verification implements the ID verification pipeline: field
// extraction, face comparison and template validation run strictly in
// sequence, short-circuiting on the first negative verdict, with the
// surviving identity persisted before a success is reported.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/id-check/internal/biometric"
	"github.com/example/id-check/internal/logging"
	"github.com/example/id-check/internal/parser"
	"github.com/example/id-check/internal/repository"
)

// FailureReason tags a rejected verification.
type FailureReason string

const (
	ReasonInvalidDocument FailureReason = "invalid_document"
	ReasonFaceMismatch    FailureReason = "face_mismatch"
	ReasonInvalidTemplate FailureReason = "invalid_template"
)

// User-facing rejection messages. These are part of the API contract.
const (
	msgInvalidDocument = "Invalid ID or ID not clear."
	msgFaceMismatch    = "Face mismatch between ID and selfie."
	msgInvalidTemplate = "Invalid ID template."
)

// VerifiedIdentity is the enriched record returned on success.
type VerifiedIdentity struct {
	IDNumber     string `json:"id_number"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name"`
	LastName     string `json:"last_name"`
	DateOfBirth  string `json:"dob"`
	IsSamePerson string `json:"is_same_person"`
	Similarity   string `json:"similarity"`
}

// cachedRecord is the cache projection of a stored record.
type cachedRecord struct {
	IDNumber     string    `json:"id_number"`
	FirstName    string    `json:"first_name"`
	MiddleName   string    `json:"middle_name"`
	LastName     string    `json:"last_name"`
	DateOfBirth  string    `json:"dob"`
	FaceMatch    bool      `json:"face_match"`
	MatchPercent float64   `json:"match_percent"`
	CreatedAt    time.Time `json:"created_at"`
}

// Verdict is the single outcome of one verification request. Either Accepted
// is true and Identity is set, or Accepted is false and Reason/Message
// describe the rejection. Pipeline malfunctions are reported as errors from
// Verify, not as verdicts.
type Verdict struct {
	RequestID string
	Accepted  bool
	Reason    FailureReason
	Message   string
	Identity  *VerifiedIdentity
}

// FieldExtractor is the OCR parsing stage.
type FieldExtractor interface {
	Extract(ctx context.Context, imageBytes []byte) (*parser.IdentityRecord, bool, error)
}

// FaceComparator is the biometric stage.
type FaceComparator interface {
	Compare(ctx context.Context, idImage, selfie []byte) (biometric.FaceMatchResult, error)
}

// TemplateValidator is the structural validation stage.
type TemplateValidator interface {
	Validate(ctx context.Context, imageBytes []byte) (bool, error)
}

// RecordStore persists verified identities with insert-if-absent semantics.
type RecordStore interface {
	Save(ctx context.Context, record *repository.IDRecord) error
	FindByIDNumber(ctx context.Context, idNumber string) (*repository.IDRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Service sequences the pipeline stages. All collaborators are injected at
// construction; the service holds no per-request state.
type Service struct {
	extractor      FieldExtractor
	comparator     FaceComparator
	validator      TemplateValidator
	store          RecordStore
	cache          Cache
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewService constructs the verification service.
func NewService(extractor FieldExtractor, comparator FaceComparator, validator TemplateValidator, store RecordStore, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		extractor:      extractor,
		comparator:     comparator,
		validator:      validator,
		store:          store,
		cache:          cache,
		logger:         logger.Named("verification_service"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Verify runs one ID image and selfie through the pipeline. Stages execute
// strictly in order and each external call is made at most once; the first
// failing gate produces the verdict and no later stage runs. A non-nil error
// means the pipeline itself malfunctioned, not that the document was
// rejected.
func (s *Service) Verify(ctx context.Context, idImage, selfie []byte) (*Verdict, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "verification.verify", requestID)

	record, ok, err := s.extractor.Extract(ctx, idImage)
	if err != nil {
		wrapped := logging.NewOperationError("verification.extract_fields", requestID, err)
		opLogger.Error("field extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if !ok {
		opLogger.Info("document rejected", zap.String("reason", string(ReasonInvalidDocument)))
		return rejected(requestID, ReasonInvalidDocument, msgInvalidDocument), nil
	}

	faceResult, err := s.comparator.Compare(ctx, idImage, selfie)
	if err != nil {
		wrapped := logging.NewOperationError("verification.compare_faces", requestID, err)
		opLogger.Error("face comparison failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if !faceResult.IsMatch {
		opLogger.Info("document rejected", zap.String("reason", string(ReasonFaceMismatch)))
		return rejected(requestID, ReasonFaceMismatch, msgFaceMismatch), nil
	}

	valid, err := s.validator.Validate(ctx, idImage)
	if err != nil {
		wrapped := logging.NewOperationError("verification.validate_template", requestID, err)
		opLogger.Error("template validation failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if !valid {
		opLogger.Info("document rejected", zap.String("reason", string(ReasonInvalidTemplate)))
		return rejected(requestID, ReasonInvalidTemplate, msgInvalidTemplate), nil
	}

	stored := &repository.IDRecord{
		IDNumber:     record.IDNumber,
		FirstName:    record.FirstName,
		MiddleName:   record.MiddleName,
		LastName:     record.LastName,
		DateOfBirth:  record.DateOfBirth,
		FaceMatch:    faceResult.IsMatch,
		MatchPercent: faceResult.Similarity,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Save(ctx, stored); err != nil {
		wrapped := logging.NewOperationError("verification.save_record", requestID, err)
		opLogger.Error("failed to persist record", zap.Error(wrapped))
		return nil, wrapped
	}

	identity := enrich(record, faceResult)
	s.cacheRecord(ctx, requestID, stored, opLogger)

	opLogger.Info("document verified",
		zap.String("id_number", record.IDNumber),
		zap.Float64("similarity", faceResult.Similarity))
	return &Verdict{RequestID: requestID, Accepted: true, Identity: identity}, nil
}

// GetRecord looks up a stored verification by document number, consulting
// the cache first and falling back to the repository.
func (s *Service) GetRecord(ctx context.Context, idNumber string) (*repository.IDRecord, error) {
	cacheKey := recordCacheKey(idNumber)
	if cached, err := s.withCacheGet(ctx, idNumber, "cache.get.record", cacheKey); err == nil {
		var payload cachedRecord
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(s.logger, "verification.get_record", idNumber).
				Warn("failed to decode cached record", zap.Error(err))
		} else {
			return &repository.IDRecord{
				IDNumber:     payload.IDNumber,
				FirstName:    payload.FirstName,
				MiddleName:   payload.MiddleName,
				LastName:     payload.LastName,
				DateOfBirth:  payload.DateOfBirth,
				FaceMatch:    payload.FaceMatch,
				MatchPercent: payload.MatchPercent,
				CreatedAt:    payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(s.logger, "verification.get_record", idNumber).
			Warn("failed to read cache", zap.Error(err))
	}

	return s.store.FindByIDNumber(ctx, idNumber)
}

// cacheRecord writes the persisted record to the cache. Persistence already
// succeeded at this point, so cache failures only degrade lookups and are
// logged rather than surfaced.
func (s *Service) cacheRecord(ctx context.Context, requestID string, record *repository.IDRecord, opLogger *zap.Logger) {
	serialized, err := json.Marshal(cachedRecord{
		IDNumber:     record.IDNumber,
		FirstName:    record.FirstName,
		MiddleName:   record.MiddleName,
		LastName:     record.LastName,
		DateOfBirth:  record.DateOfBirth,
		FaceMatch:    record.FaceMatch,
		MatchPercent: record.MatchPercent,
		CreatedAt:    record.CreatedAt,
	})
	if err != nil {
		opLogger.Warn("failed to serialize record for cache", zap.Error(err))
		return
	}
	err = s.withCacheRetry(ctx, requestID, "cache.set.record", func() error {
		return s.cache.Set(ctx, recordCacheKey(record.IDNumber), string(serialized), recordTTL)
	})
	if err != nil {
		opLogger.Warn("failed to cache verified record", zap.Error(err))
	}
}

func recordCacheKey(idNumber string) string {
	return fmt.Sprintf("idrecord:%s", idNumber)
}

func rejected(requestID string, reason FailureReason, message string) *Verdict {
	return &Verdict{RequestID: requestID, Reason: reason, Message: message}
}

// enrich merges the face comparison outcome into the extracted record.
// Similarity is rounded to two decimals and rendered with a percent suffix.
func enrich(record *parser.IdentityRecord, face biometric.FaceMatchResult) *VerifiedIdentity {
	samePerson := "False"
	if face.IsMatch {
		samePerson = "True"
	}
	return &VerifiedIdentity{
		IDNumber:     record.IDNumber,
		FirstName:    record.FirstName,
		MiddleName:   record.MiddleName,
		LastName:     record.LastName,
		DateOfBirth:  record.DateOfBirth,
		IsSamePerson: samePerson,
		Similarity:   formatSimilarity(face.Similarity),
	}
}

// formatSimilarity renders a similarity score with two decimals and a percent
// suffix. Rounding happens in decimal space so a score such as 97.345, whose
// nearest float64 sits just below the tie, still rounds up to 97.35.
func formatSimilarity(similarity float64) string {
	return decimal.NewFromFloat(similarity).StringFixed(2) + "%"
}

func (s *Service) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if s.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !logging.IsTransient(err) || attempt == s.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (s *Service) withCacheGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := s.withCacheRetry(ctx, requestID, operation, func() error {
		value, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
