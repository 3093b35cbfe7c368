package services

import (
	"context"
	"errors"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/alimgiray/hookmetrics/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// WebhookStore persists deliveries with insert-or-ignore semantics on delivery_id
type WebhookStore interface {
	Insert(ctx context.Context, e *models.WebhookEvent) (bool, error)
}

type IngestRequest struct {
	DeliveryID string
	EventType  string
	Body       []byte
	Signature  string
	ClientIP   string
}

type IngestResult struct {
	DeliveryID string
	Duplicate  bool
	Status     models.ProcessingStatus
}

type IngestConfig struct {
	Secret string
	Policy IPPolicy
}

type IngestService struct {
	store     WebhookStore
	allowlist *Allowlist
	teams     *TeamResolver
	metrics   *metrics.Metrics
	secret    string
	policy    IPPolicy
	now       func() time.Time
}

func NewIngestService(store WebhookStore, allowlist *Allowlist, teams *TeamResolver, m *metrics.Metrics, cfg IngestConfig) *IngestService {
	if teams == nil {
		teams = NewTeamResolver(nil)
	}
	return &IngestService{
		store:     store,
		allowlist: allowlist,
		teams:     teams,
		metrics:   m,
		secret:    cfg.Secret,
		policy:    cfg.Policy,
		now:       time.Now,
	}
}

// Ingest validates a delivery and stores it at most once.
// A redelivered delivery_id is reported as Duplicate with a nil error.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	start := time.Now()
	outcome := metrics.OutcomeStored
	defer func() {
		s.metrics.ObserveDelivery(req.EventType, outcome, time.Since(start))
	}()

	log := logger.WithFields(logrus.Fields{
		"delivery_id": req.DeliveryID,
		"event_type":  req.EventType,
		"client_ip":   req.ClientIP,
	})

	if !ValidateSignature(req.Body, req.Signature, s.secret) {
		outcome = metrics.OutcomeInvalidSignature
		log.Warn("Rejected webhook with invalid signature")
		return nil, ErrInvalidSignature
	}

	if !ValidateSource(req.ClientIP, s.policy, s.allowlist.Ranges()) {
		outcome = metrics.OutcomeForbiddenSource
		log.Warn("Rejected webhook from source outside allowlist")
		return nil, ErrForbiddenSource
	}

	if req.DeliveryID == "" || req.EventType == "" {
		outcome = metrics.OutcomeBadRequest
		return nil, ErrMissingDelivery
	}

	meta, decodeErr := extractMetadata(req.EventType, req.Body)
	if errors.Is(decodeErr, ErrMalformedBody) {
		outcome = metrics.OutcomeBadRequest
		return nil, decodeErr
	}

	event := &models.WebhookEvent{
		DeliveryID:  req.DeliveryID,
		Repository:  meta.Repository,
		EventType:   req.EventType,
		Action:      meta.Action,
		PRNumber:    meta.PRNumber,
		Sender:      meta.Sender,
		PRAuthor:    meta.PRAuthor,
		LabelName:   meta.LabelName,
		ReviewState: meta.ReviewState,
		Payload:     req.Body,
		Status:      models.StatusSuccess,
		ReceivedAt:  s.now().UTC(),
	}
	if meta.IsPRReview {
		event.ReviewerTeam, event.PRTeam, event.IsCrossTeam = s.teams.Resolve(meta.Sender, meta.PRAuthor, meta.PRLabels)
	}
	if decodeErr != nil {
		event.Status = models.StatusFailed
		event.ErrorMessage = decodeErr.Error()
		log.WithError(decodeErr).Warn("Storing webhook with undecodable payload")
	}
	event.DurationMs = time.Since(start).Milliseconds()

	inserted, err := s.store.Insert(ctx, event)
	if err != nil {
		outcome = metrics.OutcomeStorageError
		log.WithError(err).Error("Failed to store webhook")
		return nil, &StorageError{Err: err}
	}

	result := &IngestResult{DeliveryID: req.DeliveryID, Status: event.Status}
	if !inserted {
		outcome = metrics.OutcomeDuplicate
		result.Duplicate = true
		log.Info("Duplicate delivery absorbed")
		return result, nil
	}

	log.WithField("repository", event.Repository).Debug("Webhook stored")
	return result, nil
}
