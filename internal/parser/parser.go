// Package parser turns raw OCR output from a photographed Philippine
// national ID into a structured identity record.
package parser

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/example/id-check/internal/logging"
	"github.com/example/id-check/internal/ocr"
)

// documentMarker must appear somewhere in the recognized text for the image
// to be treated as a PhilID at all. This is a document-type sanity check,
// separate from template validation.
const documentMarker = "PAMBANSANG PAGKAKAKILANLAN"

// Field patterns for the PhilID card layout. Names are printed as an all-caps
// line (uppercase Latin plus the Filipino Ñ) directly under their label.
var (
	idNumberPattern   = regexp.MustCompile(`(\d{4}-\d{4}-\d{4}-\d{4})`)
	lastNamePattern   = regexp.MustCompile(`Last Name\n([A-ZÑñ ]+)\n`)
	firstNamePattern  = regexp.MustCompile(`Given Names\n([A-ZÑñ ]+)\n`)
	middleNamePattern = regexp.MustCompile(`Middle Name\n([A-ZÑñ ]+)\n`)
	dobPattern        = regexp.MustCompile(`Date of Birth\n([A-Z ]+\d{2}, \d{4})`)
)

// IdentityRecord holds the fields extracted from the card. MiddleName may be
// empty; the other fields are always populated on a record returned by
// Extract.
type IdentityRecord struct {
	IDNumber    string
	FirstName   string
	MiddleName  string
	LastName    string
	DateOfBirth string
}

// FieldExtractor runs the OCR engine and scans its output for the identity
// fields.
type FieldExtractor struct {
	engine ocr.Engine
	logger *zap.Logger
}

// NewFieldExtractor constructs an extractor over the given OCR engine.
func NewFieldExtractor(engine ocr.Engine, logger *zap.Logger) *FieldExtractor {
	return &FieldExtractor{engine: engine, logger: logger.Named("field_extractor")}
}

// Extract OCRs the ID image and assembles an IdentityRecord.
//
// Returns (record, true, nil) when the document marker was found and the
// mandatory fields (ID number, first name, last name, date of birth) all
// matched; (nil, false, nil) when the engine ran but the image is not a
// readable PhilID; and a non-nil error only when the engine itself failed.
func (f *FieldExtractor) Extract(ctx context.Context, imageBytes []byte) (*IdentityRecord, bool, error) {
	blocks, err := f.engine.DetectText(ctx, imageBytes)
	if err != nil {
		return nil, false, logging.NewOperationError("parser.detect_text", "", err)
	}

	if !containsMarker(blocks) {
		f.logger.Info("document marker not found", zap.Int("blocks", len(blocks)))
		return nil, false, nil
	}

	record, ok := scanFields(blocks)
	if !ok {
		f.logger.Info("mandatory fields incomplete", zap.Int("blocks", len(blocks)))
		return nil, false, nil
	}
	return record, true, nil
}

func containsMarker(blocks []ocr.TextBlock) bool {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.Text)
		sb.WriteByte('\n')
	}
	return strings.Contains(sb.String(), documentMarker)
}

// scanFields walks the blocks in engine order and keeps the FIRST match per
// field, stopping early once all five patterns have hit. Block order is
// significant: the engine returns the full-page transcript first, then the
// individual fragments.
func scanFields(blocks []ocr.TextBlock) (*IdentityRecord, bool) {
	var idNumber, lastName, firstName, middleName, dob []string
	for _, block := range blocks {
		if idNumber == nil {
			idNumber = idNumberPattern.FindStringSubmatch(block.Text)
		}
		if lastName == nil {
			lastName = lastNamePattern.FindStringSubmatch(block.Text)
		}
		if firstName == nil {
			firstName = firstNamePattern.FindStringSubmatch(block.Text)
		}
		if middleName == nil {
			middleName = middleNamePattern.FindStringSubmatch(block.Text)
		}
		if dob == nil {
			dob = dobPattern.FindStringSubmatch(block.Text)
		}
		if idNumber != nil && lastName != nil && firstName != nil && middleName != nil && dob != nil {
			break
		}
	}

	if idNumber == nil || firstName == nil || lastName == nil || dob == nil {
		return nil, false
	}

	record := &IdentityRecord{
		IDNumber:    idNumber[1],
		FirstName:   firstName[1],
		LastName:    lastName[1],
		DateOfBirth: dob[1],
	}
	if middleName != nil {
		record.MiddleName = middleName[1]
	}
	return record, true
}
