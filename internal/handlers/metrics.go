package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/internal/repositories"
	"github.com/alimgiray/hookmetrics/internal/services"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/gin-gonic/gin"
)

const userPRsPageSize = 10

type MetricsHandler struct {
	metricsService           *services.MetricsService
	contributorService       *services.ContributorService
	turnaroundService        *services.TurnaroundService
	teamDynamicsService      *services.TeamDynamicsService
	commentResolutionService *services.CommentResolutionService
	timelineService          *services.TimelineService
	exportService            *services.ExportService
}

func NewMetricsHandler(
	metricsService *services.MetricsService,
	contributorService *services.ContributorService,
	turnaroundService *services.TurnaroundService,
	teamDynamicsService *services.TeamDynamicsService,
	commentResolutionService *services.CommentResolutionService,
	timelineService *services.TimelineService,
	exportService *services.ExportService,
) *MetricsHandler {
	return &MetricsHandler{
		metricsService:           metricsService,
		contributorService:       contributorService,
		turnaroundService:        turnaroundService,
		teamDynamicsService:      teamDynamicsService,
		commentResolutionService: commentResolutionService,
		timelineService:          timelineService,
		exportService:            exportService,
	}
}

// Summary handles GET /api/metrics/summary
func (h *MetricsHandler) Summary(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	summary, err := h.metricsService.GetSummary(c.Request.Context(), q)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListWebhooks handles GET /api/metrics/webhooks
func (h *MetricsHandler) ListWebhooks(c *gin.Context) {
	filter, err := webhookFilter(c)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	page, pageSize, err := pageParams(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	result, err := h.metricsService.ListWebhooks(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetWebhook handles GET /api/metrics/webhooks/:delivery_id
func (h *MetricsHandler) GetWebhook(c *gin.Context) {
	event, err := h.metricsService.GetWebhook(c.Request.Context(), c.Param("delivery_id"))
	if errors.Is(err, repositories.ErrWebhookNotFound) {
		respondError(c, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// ExportWebhooks handles GET /api/metrics/webhooks/export?format=xlsx|csv
func (h *MetricsHandler) ExportWebhooks(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		respondError(c, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	filter, err := webhookFilter(c)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	events, err := h.exportService.Load(c.Request.Context(), filter)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	filename := fmt.Sprintf("webhooks-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		err = h.exportService.WriteXLSX(c.Writer, events)
	} else {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		err = h.exportService.WriteCSV(c.Writer, events)
	}
	if err != nil {
		logger.WithError(err).WithField("format", format).Error("Failed to write export")
	}
}

// Repositories handles GET /api/metrics/repositories
func (h *MetricsHandler) Repositories(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.metricsService.GetRepositories(c.Request.Context(), q)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Contributors handles GET /api/metrics/contributors
func (h *MetricsHandler) Contributors(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.contributorService.GetContributors(c.Request.Context(), q)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UserPRs handles GET /api/metrics/user-prs
func (h *MetricsHandler) UserPRs(c *gin.Context) {
	q, err := metricsQuery(c, userPRsPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.contributorService.GetUserPRs(c.Request.Context(), q, c.Query("role"))
	if errors.Is(err, services.ErrInvalidRole) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Trends handles GET /api/metrics/trends.
// Buckets are paged in time order; a default day window fits on one page.
func (h *MetricsHandler) Trends(c *gin.Context) {
	q, err := metricsQuery(c, maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	bucket := c.DefaultQuery("bucket", "day")

	trends, err := h.metricsService.GetTrends(c.Request.Context(), q, bucket)
	if errors.Is(err, services.ErrInvalidBucket) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondQueryError(c, err)
		return
	}
	page := models.Paginate(trends, q.Page, q.PageSize)
	c.JSON(http.StatusOK, gin.H{
		"bucket":     bucket,
		"data":       page.Data,
		"pagination": page.Pagination,
	})
}

// Turnaround handles GET /api/metrics/turnaround
func (h *MetricsHandler) Turnaround(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.turnaroundService.GetTurnaround(c.Request.Context(), q)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TeamDynamics handles GET /api/metrics/team-dynamics
func (h *MetricsHandler) TeamDynamics(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.teamDynamicsService.GetTeamDynamics(c.Request.Context(), q, services.TeamFilter{
		ReviewerTeam: c.Query("reviewer_team"),
		PRTeam:       c.Query("pr_team"),
	})
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CommentResolution handles GET /api/metrics/comment-resolution
func (h *MetricsHandler) CommentResolution(c *gin.Context) {
	q, err := metricsQuery(c, defaultPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	result, err := h.commentResolutionService.GetCommentResolution(c.Request.Context(), q)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PRStory handles GET /api/metrics/pr-story?repository=owner/name&pr_number=N
func (h *MetricsHandler) PRStory(c *gin.Context) {
	repository := c.Query("repository")
	if repository == "" {
		respondError(c, http.StatusBadRequest, "repository is required")
		return
	}
	prNumber, err := strconv.Atoi(c.Query("pr_number"))
	if err != nil || prNumber <= 0 {
		respondError(c, http.StatusBadRequest, "pr_number must be a positive integer")
		return
	}

	story, err := h.timelineService.BuildTimeline(c.Request.Context(), repository, prNumber)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}
