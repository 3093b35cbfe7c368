package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alimgiray/hookmetrics/internal/models"
)

var ErrWebhookNotFound = errors.New("webhook not found")

const webhookColumns = `id, delivery_id, repository, event_type, action, pr_number, sender, pr_author,
	label_name, reviewer_team, pr_team, is_cross_team, review_state, status, error_message, duration_ms, received_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Insert stores a delivery unless its delivery_id already exists.
// It reports false with a nil error when the row was absorbed as a duplicate.
func (r *WebhookRepository) Insert(ctx context.Context, e *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhooks (
			delivery_id, repository, event_type, action, pr_number, sender, pr_author,
			label_name, reviewer_team, pr_team, is_cross_team, review_state, payload, status,
			error_message, duration_ms, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (delivery_id) DO NOTHING
	`

	var prNumber sql.NullInt64
	if e.PRNumber != nil {
		prNumber = sql.NullInt64{Int64: int64(*e.PRNumber), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		e.DeliveryID, e.Repository, e.EventType, e.Action, prNumber, e.Sender, e.PRAuthor,
		e.LabelName, e.ReviewerTeam, e.PRTeam, e.IsCrossTeam, e.ReviewState, string(e.Payload), string(e.Status),
		e.ErrorMessage, e.DurationMs, e.ReceivedAt,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetByDeliveryID returns one delivery including its payload
func (r *WebhookRepository) GetByDeliveryID(ctx context.Context, deliveryID string) (*models.WebhookEvent, error) {
	query := `SELECT ` + webhookColumns + `, payload FROM webhooks WHERE delivery_id = $1`

	e, err := scanWebhook(r.db.QueryRowContext(ctx, query, deliveryID), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Count returns the number of deliveries matching the filter
func (r *WebhookRepository) Count(ctx context.Context, filter models.WebhookFilter) (int, error) {
	where := buildWebhookFilter(filter)
	query := `SELECT COUNT(*) FROM webhooks` + where.clause()

	var total int
	if err := r.db.QueryRowContext(ctx, query, where.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns a page of deliveries, newest first, without payloads
func (r *WebhookRepository) List(ctx context.Context, filter models.WebhookFilter, limit, offset int) ([]*models.WebhookEvent, error) {
	where := buildWebhookFilter(filter)
	query := `SELECT ` + webhookColumns + ` FROM webhooks` + where.clause() +
		` ORDER BY received_at DESC, id DESC LIMIT ` + where.next(limit) + ` OFFSET ` + where.next(offset)

	return r.query(ctx, false, query, where.args...)
}

// ListEvents returns every matching delivery with payload in ingestion order
func (r *WebhookRepository) ListEvents(ctx context.Context, filter models.WebhookFilter) ([]*models.WebhookEvent, error) {
	where := buildWebhookFilter(filter)
	query := `SELECT ` + webhookColumns + `, payload FROM webhooks` + where.clause() + ` ORDER BY id ASC`

	return r.query(ctx, true, query, where.args...)
}

// ListEventHeaders is ListEvents without payloads, for aggregates that only need indexed columns
func (r *WebhookRepository) ListEventHeaders(ctx context.Context, filter models.WebhookFilter) ([]*models.WebhookEvent, error) {
	where := buildWebhookFilter(filter)
	query := `SELECT ` + webhookColumns + ` FROM webhooks` + where.clause() + ` ORDER BY id ASC`

	return r.query(ctx, false, query, where.args...)
}

func (r *WebhookRepository) query(ctx context.Context, withPayload bool, query string, args ...interface{}) ([]*models.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*models.WebhookEvent, 0)
	for rows.Next() {
		e, err := scanWebhook(rows, withPayload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner, withPayload bool) (*models.WebhookEvent, error) {
	var (
		e        models.WebhookEvent
		prNumber sql.NullInt64
		status   string
		payload  []byte
	)
	dest := []interface{}{
		&e.ID, &e.DeliveryID, &e.Repository, &e.EventType, &e.Action, &prNumber, &e.Sender, &e.PRAuthor,
		&e.LabelName, &e.ReviewerTeam, &e.PRTeam, &e.IsCrossTeam, &e.ReviewState, &status, &e.ErrorMessage, &e.DurationMs, &e.ReceivedAt,
	}
	if withPayload {
		dest = append(dest, &payload)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if prNumber.Valid {
		n := int(prNumber.Int64)
		e.PRNumber = &n
	}
	e.Status = models.ProcessingStatus(status)
	e.ReceivedAt = e.ReceivedAt.UTC()
	if withPayload {
		e.Payload = payload
	}
	return &e, nil
}

// WebhookCounts are the headline aggregates for a filtered set of deliveries
type WebhookCounts struct {
	Total              int
	Successful         int
	TotalDurationMs    int64
	UniqueRepositories int
	UniqueSenders      int
}

// Counts aggregates totals, successes and distinct repositories/senders
func (r *WebhookRepository) Counts(ctx context.Context, filter models.WebhookFilter) (*WebhookCounts, error) {
	where := buildWebhookFilter(filter)
	query := `
		SELECT
			COUNT(*),
			CAST(COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(duration_ms), 0) AS BIGINT),
			COUNT(DISTINCT repository),
			COUNT(DISTINCT NULLIF(sender, ''))
		FROM webhooks` + where.clause()

	var c WebhookCounts
	err := r.db.QueryRowContext(ctx, query, where.args...).Scan(
		&c.Total, &c.Successful, &c.TotalDurationMs, &c.UniqueRepositories, &c.UniqueSenders,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountByEventType returns delivery counts keyed by event type
func (r *WebhookRepository) CountByEventType(ctx context.Context, filter models.WebhookFilter) (map[string]int, error) {
	where := buildWebhookFilter(filter)
	query := `SELECT event_type, COUNT(*) FROM webhooks` + where.clause() + ` GROUP BY event_type`

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

// RepositoryCounts returns per-repository aggregates ordered by volume
func (r *WebhookRepository) RepositoryCounts(ctx context.Context, filter models.WebhookFilter, limit, offset int) ([]*models.RepositoryStats, error) {
	where := buildWebhookFilter(filter)
	query := `
		SELECT
			repository,
			COUNT(*) AS total,
			CAST(COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(duration_ms), 0) AS BIGINT)
		FROM webhooks` + where.clause() + `
		GROUP BY repository
		ORDER BY total DESC, repository ASC
		LIMIT ` + where.next(limit) + ` OFFSET ` + where.next(offset)

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]*models.RepositoryStats, 0)
	for rows.Next() {
		var s models.RepositoryStats
		var durationMs int64
		if err := rows.Scan(&s.Repository, &s.TotalEvents, &s.SuccessfulEvents, &durationMs); err != nil {
			return nil, err
		}
		s.FailedEvents = s.TotalEvents - s.SuccessfulEvents
		if s.TotalEvents > 0 {
			s.SuccessRate = percentage(s.SuccessfulEvents, s.TotalEvents)
			s.AvgProcessingTimeMs = float64(durationMs) / float64(s.TotalEvents)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// Ping verifies the database is reachable
func (r *WebhookRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// whereBuilder collects conditions with $N placeholders numbered in order of appearance
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// next binds one argument and returns its placeholder
func (b *whereBuilder) next(arg interface{}) string {
	b.args = append(b.args, arg)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(cond string, arg interface{}) {
	b.conds = append(b.conds, fmt.Sprintf(cond, b.next(arg)))
}

func (b *whereBuilder) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.next(v)
	}
	b.conds = append(b.conds, column+" IN ("+strings.Join(placeholders, ", ")+")")
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func buildWebhookFilter(f models.WebhookFilter) *whereBuilder {
	b := &whereBuilder{}
	b.in("repository", f.Repositories)
	b.in("event_type", f.EventTypes)
	if f.Status != "" {
		b.add("status = %s", f.Status)
	}
	if f.Start != nil {
		b.add("received_at >= %s", f.Start.UTC())
	}
	if f.End != nil {
		b.add("received_at <= %s", f.End.UTC())
	}
	if f.PRNumber != nil {
		b.add("pr_number = %s", *f.PRNumber)
	}
	if f.CrossTeamOnly {
		b.add("is_cross_team = %s", true)
	}
	return b
}
