package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/pkg/config"
	"github.com/alimgiray/hookmetrics/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *WebhookRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite3", URL: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, "sqlite3"))

	return NewWebhookRepository(db)
}

func event(id int, repo, eventType string, status models.ProcessingStatus, at time.Time) *models.WebhookEvent {
	return &models.WebhookEvent{
		DeliveryID: fmt.Sprintf("d-%d", id),
		Repository: repo,
		EventType:  eventType,
		Sender:     fmt.Sprintf("user-%d", id%2),
		Payload:    json.RawMessage(fmt.Sprintf(`{"n":%d}`, id)),
		Status:     status,
		DurationMs: int64(id),
		ReceivedAt: at,
	}
}

func seed(t *testing.T, repo *WebhookRepository) {
	t.Helper()
	ctx := context.Background()
	pr := 7
	events := []*models.WebhookEvent{
		event(1, "acme/api", "push", models.StatusSuccess, base),
		event(2, "acme/api", "pull_request", models.StatusSuccess, base.Add(time.Hour)),
		event(3, "acme/web", "pull_request", models.StatusFailed, base.Add(2*time.Hour)),
		event(4, "acme/api", "pull_request_review", models.StatusSuccess, base.Add(3*time.Hour)),
	}
	events[1].PRNumber = &pr
	events[3].PRNumber = &pr
	events[3].IsCrossTeam = true
	events[3].ReviewerTeam, events[3].PRTeam = "web", "core"
	events[3].ReviewState = "changes_requested"

	for _, e := range events {
		inserted, err := repo.Insert(ctx, e)
		require.NoError(t, err)
		require.True(t, inserted)
	}
}

func TestInsertIgnoresDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := event(1, "acme/api", "push", models.StatusSuccess, base)
	inserted, err := repo.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := event(1, "acme/other", "ping", models.StatusFailed, base.Add(time.Hour))
	inserted, err = repo.Insert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.GetByDeliveryID(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "acme/api", stored.Repository)
	assert.Equal(t, "push", stored.EventType)
	assert.JSONEq(t, `{"n":1}`, string(stored.Payload))
	assert.True(t, stored.ReceivedAt.Equal(base))
	assert.Nil(t, stored.PRNumber)

	total, err := repo.Count(ctx, models.WebhookFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGetByDeliveryIDNotFound(t *testing.T) {
	_, err := newTestRepository(t).GetByDeliveryID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrWebhookNotFound)
}

func TestListAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seed(t, repo)

	pr := 7
	start, end := base.Add(time.Hour), base.Add(2*time.Hour)
	tests := []struct {
		name   string
		filter models.WebhookFilter
		want   []string
	}{
		{"all newest first", models.WebhookFilter{}, []string{"d-4", "d-3", "d-2", "d-1"}},
		{"repository", models.WebhookFilter{Repositories: []string{"acme/web"}}, []string{"d-3"}},
		{"event types", models.WebhookFilter{EventTypes: []string{"push", "pull_request_review"}}, []string{"d-4", "d-1"}},
		{"status", models.WebhookFilter{Status: "failed"}, []string{"d-3"}},
		{"window is inclusive", models.WebhookFilter{Start: &start, End: &end}, []string{"d-3", "d-2"}},
		{"pr number", models.WebhookFilter{PRNumber: &pr, Repositories: []string{"acme/api"}}, []string{"d-4", "d-2"}},
		{"cross team", models.WebhookFilter{CrossTeamOnly: true}, []string{"d-4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.List(ctx, tt.filter, 10, 0)
			require.NoError(t, err)

			ids := make([]string, 0, len(events))
			for _, e := range events {
				ids = append(ids, e.DeliveryID)
				assert.Nil(t, e.Payload)
			}
			assert.Equal(t, tt.want, ids)

			count, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), count)
		})
	}

	t.Run("offset", func(t *testing.T) {
		events, err := repo.List(ctx, models.WebhookFilter{}, 2, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "d-2", events[0].DeliveryID)
	})
}

func TestListEventsInIngestionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seed(t, repo)

	events, err := repo.ListEvents(ctx, models.WebhookFilter{Repositories: []string{"acme/api"}})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "d-1", events[0].DeliveryID)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Payload))
	assert.Equal(t, "d-4", events[2].DeliveryID)
	assert.True(t, events[2].IsCrossTeam)
	assert.Equal(t, "web", events[2].ReviewerTeam)

	headers, err := repo.ListEventHeaders(ctx, models.WebhookFilter{})
	require.NoError(t, err)
	require.Len(t, headers, 4)
	assert.Nil(t, headers[0].Payload)
	assert.Empty(t, headers[0].ReviewState)
	assert.Equal(t, "changes_requested", headers[3].ReviewState)
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seed(t, repo)

	counts, err := repo.Counts(ctx, models.WebhookFilter{})
	require.NoError(t, err)
	assert.Equal(t, &WebhookCounts{
		Total:              4,
		Successful:         3,
		TotalDurationMs:    10,
		UniqueRepositories: 2,
		UniqueSenders:      2,
	}, counts)

	byType, err := repo.CountByEventType(ctx, models.WebhookFilter{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"push": 1, "pull_request": 2, "pull_request_review": 1}, byType)

	stats, err := repo.RepositoryCounts(ctx, models.WebhookFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "acme/api", stats[0].Repository)
	assert.Equal(t, 3, stats[0].TotalEvents)
	assert.Equal(t, 100.0, stats[0].SuccessRate)
	assert.Equal(t, 1, stats[1].FailedEvents)
	assert.Equal(t, 0.0, stats[1].SuccessRate)
	assert.Equal(t, 3.0, stats[1].AvgProcessingTimeMs)

	empty, err := repo.Counts(ctx, models.WebhookFilter{Repositories: []string{"none/none"}})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.TotalDurationMs)

	require.NoError(t, repo.Ping(ctx))
}
