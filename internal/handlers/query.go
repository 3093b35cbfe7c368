package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
	// maxPage keeps (page-1)*page_size far from int overflow
	maxPage = 1_000_000
)

// errBadQuery marks query parameter errors that map to 400
var errBadQuery = errors.New("bad query")

func badQuery(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadQuery, fmt.Sprintf(format, args...))
}

// listParam accepts repeated keys as well as comma-separated values
func listParam(c *gin.Context, keys ...string) []string {
	var out []string
	for _, key := range keys {
		for _, raw := range c.QueryArray(key) {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

func timeParam(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, badQuery("%s must be an RFC 3339 timestamp", key)
	}
	t = t.UTC()
	return &t, nil
}

// intParam parses an integer in [lo, hi]; hi <= 0 means unbounded
func intParam(c *gin.Context, key string, def, lo, hi int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		if hi > 0 {
			return 0, badQuery("%s must be an integer between %d and %d", key, lo, hi)
		}
		return 0, badQuery("%s must be an integer >= %d", key, lo)
	}
	return n, nil
}

func pageParams(c *gin.Context, defPageSize int) (int, int, error) {
	page, err := intParam(c, "page", 1, 1, maxPage)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := intParam(c, "page_size", defPageSize, 1, maxPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// metricsQuery parses the filters shared by the metrics endpoints
func metricsQuery(c *gin.Context, defPageSize int) (models.MetricsQuery, error) {
	var q models.MetricsQuery
	var err error

	if q.Start, err = timeParam(c, "start_time"); err != nil {
		return q, err
	}
	if q.End, err = timeParam(c, "end_time"); err != nil {
		return q, err
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return q, badQuery("end_time must not be before start_time")
	}
	if q.Page, q.PageSize, err = pageParams(c, defPageSize); err != nil {
		return q, err
	}
	q.Repositories = listParam(c, "repositories", "repository")
	q.Users = listParam(c, "users")
	q.ExcludeUsers = listParam(c, "exclude_users")
	return q, nil
}

// webhookFilter parses the filters of the delivery list and its export
func webhookFilter(c *gin.Context) (models.WebhookFilter, error) {
	var f models.WebhookFilter
	var err error

	if f.Start, err = timeParam(c, "start_time"); err != nil {
		return f, err
	}
	if f.End, err = timeParam(c, "end_time"); err != nil {
		return f, err
	}
	f.Repositories = listParam(c, "repository", "repositories")
	f.EventTypes = listParam(c, "event_type")

	switch status := models.ProcessingStatus(c.Query("status")); status {
	case "", models.StatusSuccess, models.StatusFailed:
		f.Status = string(status)
	default:
		return f, badQuery("status must be success or failed")
	}
	return f, nil
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// respondQueryError answers 400 for parameter errors and 500 otherwise
func respondQueryError(c *gin.Context, err error) {
	if errors.Is(err, errBadQuery) {
		respondError(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadQuery.Error()+": "))
		return
	}
	logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Metrics request failed")
	respondError(c, http.StatusInternalServerError, "internal server error")
}
