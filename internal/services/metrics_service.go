package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/internal/repositories"
)

const topRepositoriesLimit = 10

// trendBuckets are the bucket sizes GetTrends accepts
var trendBuckets = map[string]time.Duration{
	"hour": time.Hour,
	"day":  24 * time.Hour,
	"week": 7 * 24 * time.Hour,
}

var ErrInvalidBucket = errors.New("bucket must be one of hour, day, week")

type MetricsService struct {
	webhookRepo *repositories.WebhookRepository
	now         func() time.Time
}

func NewMetricsService(webhookRepo *repositories.WebhookRepository) *MetricsService {
	return &MetricsService{webhookRepo: webhookRepo, now: time.Now}
}

func windowFilter(q models.MetricsQuery) models.WebhookFilter {
	return models.WebhookFilter{
		Repositories: q.Repositories,
		Start:        q.Start,
		End:          q.End,
	}
}

// GetSummary returns headline stats, the event type mix and the busiest repositories
func (s *MetricsService) GetSummary(ctx context.Context, q models.MetricsQuery) (*models.Summary, error) {
	filter := windowFilter(q)

	counts, err := s.webhookRepo.Counts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("summary counts: %w", err)
	}
	byType, err := s.webhookRepo.CountByEventType(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("summary event types: %w", err)
	}
	top, err := s.webhookRepo.RepositoryCounts(ctx, filter, topRepositoriesLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("summary repositories: %w", err)
	}

	summary := &models.Summary{
		Summary: models.SummaryStats{
			TotalEvents:        counts.Total,
			SuccessfulEvents:   counts.Successful,
			FailedEvents:       counts.Total - counts.Successful,
			UniqueRepositories: counts.UniqueRepositories,
			UniqueSenders:      counts.UniqueSenders,
		},
		EventTypeDistribution: byType,
		TopRepositories:       make([]models.RepositoryShare, 0, len(top)),
	}
	if counts.Total > 0 {
		summary.Summary.SuccessRate = round1(float64(counts.Successful) * 100 / float64(counts.Total))
		summary.Summary.AvgProcessingTimeMs = round1(float64(counts.TotalDurationMs) / float64(counts.Total))
	}
	for _, repo := range top {
		share := models.RepositoryShare{Repository: repo.Repository, TotalEvents: repo.TotalEvents}
		if counts.Total > 0 {
			share.Percentage = round1(float64(repo.TotalEvents) * 100 / float64(counts.Total))
		}
		summary.TopRepositories = append(summary.TopRepositories, share)
	}
	return summary, nil
}

// ListWebhooks returns one page of stored deliveries, newest first
func (s *MetricsService) ListWebhooks(ctx context.Context, filter models.WebhookFilter, page, pageSize int) (*models.Page[*models.WebhookEvent], error) {
	total, err := s.webhookRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count webhooks: %w", err)
	}
	events, err := s.webhookRepo.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return &models.Page[*models.WebhookEvent]{
		Data:       events,
		Pagination: models.NewPagination(total, page, pageSize),
	}, nil
}

// GetWebhook returns a single delivery with its payload
func (s *MetricsService) GetWebhook(ctx context.Context, deliveryID string) (*models.WebhookEvent, error) {
	return s.webhookRepo.GetByDeliveryID(ctx, deliveryID)
}

// ExportWebhooks returns up to limit deliveries for download
func (s *MetricsService) ExportWebhooks(ctx context.Context, filter models.WebhookFilter, limit int) ([]*models.WebhookEvent, error) {
	return s.webhookRepo.List(ctx, filter, limit, 0)
}

// GetRepositories returns per-repository stats ordered by volume
func (s *MetricsService) GetRepositories(ctx context.Context, q models.MetricsQuery) (*models.Page[*models.RepositoryStats], error) {
	filter := windowFilter(q)

	counts, err := s.webhookRepo.Counts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("repository counts: %w", err)
	}
	stats, err := s.webhookRepo.RepositoryCounts(ctx, filter, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("repository stats: %w", err)
	}
	for _, st := range stats {
		st.SuccessRate = round1(st.SuccessRate)
		st.AvgProcessingTimeMs = round1(st.AvgProcessingTimeMs)
	}
	return &models.Page[*models.RepositoryStats]{
		Data:       stats,
		Pagination: models.NewPagination(counts.UniqueRepositories, q.Page, q.PageSize),
	}, nil
}

// GetTrends buckets deliveries over time; the window defaults to the last 7 days
func (s *MetricsService) GetTrends(ctx context.Context, q models.MetricsQuery, bucket string) ([]models.TrendBucket, error) {
	size, ok := trendBuckets[bucket]
	if !ok {
		return nil, ErrInvalidBucket
	}

	end := s.now().UTC()
	if q.End != nil {
		end = q.End.UTC()
	}
	start := end.Add(-7 * 24 * time.Hour)
	if q.Start != nil {
		start = q.Start.UTC()
	}

	filter := windowFilter(q)
	filter.Start, filter.End = &start, &end
	events, err := s.webhookRepo.ListEventHeaders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("trend events: %w", err)
	}

	buckets := make(map[time.Time]*models.TrendBucket)
	for _, e := range events {
		key := truncateBucket(e.ReceivedAt, bucket, size)
		b, ok := buckets[key]
		if !ok {
			b = &models.TrendBucket{Bucket: key}
			buckets[key] = b
		}
		b.TotalEvents++
		if e.Status == models.StatusSuccess {
			b.SuccessfulEvents++
		} else {
			b.FailedEvents++
		}
	}

	trends := make([]models.TrendBucket, 0, len(buckets))
	for _, b := range buckets {
		trends = append(trends, *b)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Bucket.Before(trends[j].Bucket) })
	return trends, nil
}

// truncateBucket aligns t to its bucket start; weeks start on Monday
func truncateBucket(t time.Time, bucket string, size time.Duration) time.Time {
	t = t.UTC()
	switch bucket {
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return t.Truncate(size)
	}
}

// Ping reports whether storage is reachable
func (s *MetricsService) Ping(ctx context.Context) error {
	return s.webhookRepo.Ping(ctx)
}
