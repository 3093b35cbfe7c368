package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/alimgiray/hookmetrics/internal/services"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v57/github"
)

const signatureHeader = "X-Hub-Signature-256"

type WebhookHandler struct {
	ingestService *services.IngestService
	maxBodyBytes  int64
}

func NewWebhookHandler(ingestService *services.IngestService, maxBodyBytes int64) *WebhookHandler {
	return &WebhookHandler{
		ingestService: ingestService,
		maxBodyBytes:  maxBodyBytes,
	}
}

// Receive handles POST /webhooks/github
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(c, http.StatusBadRequest, "could not read request body")
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), services.IngestRequest{
		DeliveryID: github.DeliveryID(c.Request),
		EventType:  github.WebHookType(c.Request),
		Body:       body,
		Signature:  c.GetHeader(signatureHeader),
		ClientIP:   c.ClientIP(),
	})

	var storageErr *services.StorageError
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidSignature), errors.Is(err, services.ErrForbiddenSource):
		respondError(c, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, services.ErrMissingDelivery), errors.Is(err, services.ErrMalformedBody):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &storageErr):
		respondError(c, http.StatusInternalServerError, "failed to store webhook")
		return
	default:
		logger.WithError(err).Error("Unexpected ingest failure")
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"delivery_id": result.DeliveryID,
	})
}
