// Package handlers wires the HTTP surface of the verification API.
package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/id-check/internal/repository"
	"github.com/example/id-check/internal/verification"
)

// MaxUploadSize caps each uploaded image.
const MaxUploadSize = 8 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Service is the slice of the verification service the handlers need.
type Service interface {
	Verify(ctx context.Context, idImage, selfie []byte) (*verification.Verdict, error)
	GetRecord(ctx context.Context, idNumber string) (*repository.IDRecord, error)
	GetMetricsSummary(ctx context.Context) (*verification.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything except
// the health probe sits behind the auth middleware.
func RegisterRoutes(router *gin.Engine, svc Service, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", authMiddleware)

	authed.POST("/validate", func(c *gin.Context) {
		idImage, ok := readImagePart(c, "id_image")
		if !ok {
			return
		}
		selfieImage, ok := readImagePart(c, "selfie_image")
		if !ok {
			return
		}

		verdict, err := svc.Verify(c.Request.Context(), idImage, selfieImage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "message": err.Error()})
			return
		}

		// Rejections are business outcomes, not transport failures.
		if !verdict.Accepted {
			c.JSON(http.StatusOK, gin.H{"status": "Failed", "message": verdict.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "Success", "data": verdict.Identity})
	})

	authed.GET("/records/:idNumber", func(c *gin.Context) {
		idNumber := c.Param("idNumber")
		record, err := svc.GetRecord(c.Request.Context(), idNumber)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"status": "Error", "message": "record not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id_number":     record.IDNumber,
			"first_name":    record.FirstName,
			"middle_name":   record.MiddleName,
			"last_name":     record.LastName,
			"dob":           record.DateOfBirth,
			"face_match":    record.FaceMatch,
			"match_percent": record.MatchPercent,
			"created_at":    record.CreatedAt,
		})
	})

	authed.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// readImagePart pulls one multipart image out of the request, enforcing the
// size cap and the allowed media types. On failure it writes the response and
// returns ok=false.
func readImagePart(c *gin.Context, field string) ([]byte, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "Error", "message": field + " file is required"})
		return nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "Error", "message": field + " exceeds the upload limit"})
		return nil, false
	}

	if !allowedImageType(file) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"status": "Error", "message": field + " must be a JPEG, PNG or WebP image"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "Error", "message": "unable to open " + field})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "Error", "message": "failed to read " + field})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "Error", "message": field + " exceeds the upload limit"})
		return nil, false
	}
	return data, true
}

func allowedImageType(file *multipart.FileHeader) bool {
	contentType := strings.TrimSpace(file.Header.Get("Content-Type"))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return allowedImageTypes[strings.ToLower(contentType)]
}
