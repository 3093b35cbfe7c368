package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/google/go-github/v57/github"
)

const unknownTeam = "unknown"

// TeamFilter narrows cross-team reviews to one reviewer team and/or PR team
type TeamFilter struct {
	ReviewerTeam string
	PRTeam       string
}

type TeamDynamicsService struct {
	events EventSource
}

func NewTeamDynamicsService(events EventSource) *TeamDynamicsService {
	return &TeamDynamicsService{events: events}
}

// GetTeamDynamics lists reviews flagged cross-team at ingest, newest first
func (s *TeamDynamicsService) GetTeamDynamics(ctx context.Context, q models.MetricsQuery, teams TeamFilter) (*models.TeamDynamics, error) {
	filter := windowFilter(q)
	filter.EventTypes = []string{"pull_request_review"}
	filter.CrossTeamOnly = true

	rows, err := s.events.ListEventHeaders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list cross-team reviews: %w", err)
	}

	reviews := make([]models.CrossTeamReview, 0, len(rows))
	byReviewerTeam := map[string]int{}
	byPRTeam := map[string]int{}

	for _, row := range rows {
		if row.PRNumber == nil {
			continue
		}
		reviewerTeam := teamOrUnknown(row.ReviewerTeam)
		prTeam := teamOrUnknown(row.PRTeam)
		if teams.ReviewerTeam != "" && reviewerTeam != teams.ReviewerTeam {
			continue
		}
		if teams.PRTeam != "" && prTeam != teams.PRTeam {
			continue
		}

		reviews = append(reviews, models.CrossTeamReview{
			Repository:   row.Repository,
			PRNumber:     *row.PRNumber,
			Reviewer:     row.Sender,
			ReviewerTeam: reviewerTeam,
			PRTeam:       prTeam,
			ReviewState:  reviewState(row),
			CreatedAt:    row.ReceivedAt,
		})
		byReviewerTeam[reviewerTeam]++
		byPRTeam[prTeam]++
	}

	sort.SliceStable(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	page := models.Paginate(reviews, q.Page, q.PageSize)

	return &models.TeamDynamics{
		Summary: models.TeamDynamicsSummary{
			TotalCrossTeamReviews: len(reviews),
			ByReviewerTeam:        teamCounts(byReviewerTeam),
			ByPRTeam:              teamCounts(byPRTeam),
		},
		Data:       page.Data,
		Pagination: page.Pagination,
	}, nil
}

func teamOrUnknown(team string) string {
	if team == "" {
		return unknownTeam
	}
	return team
}

// reviewState prefers the state stored at ingest and falls back to the payload
func reviewState(row *models.WebhookEvent) string {
	if row.ReviewState != "" || len(row.Payload) == 0 {
		return row.ReviewState
	}
	event, err := github.ParseWebHook(row.EventType, row.Payload)
	if err != nil {
		return ""
	}
	review, ok := event.(*github.PullRequestReviewEvent)
	if !ok {
		return ""
	}
	return strings.ToLower(review.GetReview().GetState())
}

func teamCounts(counts map[string]int) []models.TeamCount {
	out := make([]models.TeamCount, 0, len(counts))
	for team, n := range counts {
		out = append(out, models.TeamCount{Team: team, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Team < out[j].Team
	})
	return out
}
