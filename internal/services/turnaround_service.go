package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
)

// prMilestones are hours from the first opened delivery to each milestone; nil when not reached
type prMilestones struct {
	firstReview           *float64
	approval              *float64
	firstVerified         *float64
	firstChangesRequested *float64
	lifecycle             *float64
}

type milestoneSet struct {
	firstReview           []float64
	approval              []float64
	firstVerified         []float64
	firstChangesRequested []float64
	lifecycle             []float64
	prs                   int
}

func (m *milestoneSet) add(p prMilestones) {
	m.prs++
	appendHours(&m.firstReview, p.firstReview)
	appendHours(&m.approval, p.approval)
	appendHours(&m.firstVerified, p.firstVerified)
	appendHours(&m.firstChangesRequested, p.firstChangesRequested)
	appendHours(&m.lifecycle, p.lifecycle)
}

func (m *milestoneSet) averages() models.TurnaroundAverages {
	return models.TurnaroundAverages{
		AvgTimeToFirstReviewHours:           averageHours(m.firstReview),
		AvgTimeToApprovalHours:              averageHours(m.approval),
		AvgTimeToFirstVerifiedHours:         averageHours(m.firstVerified),
		AvgTimeToFirstChangesRequestedHours: averageHours(m.firstChangesRequested),
		AvgPRLifecycleHours:                 averageHours(m.lifecycle),
	}
}

func appendHours(dst *[]float64, h *float64) {
	if h != nil {
		*dst = append(*dst, *h)
	}
}

type reviewerSet struct {
	responses    []float64
	totalReviews int
	repositories map[string]bool
}

type TurnaroundService struct {
	events EventSource
}

func NewTurnaroundService(events EventSource) *TurnaroundService {
	return &TurnaroundService{events: events}
}

// GetTurnaround measures how long PRs wait for reviews, approvals and closing.
// Only PRs whose opened delivery is stored can be measured.
func (s *TurnaroundService) GetTurnaround(ctx context.Context, q models.MetricsQuery) (*models.Turnaround, error) {
	filter := windowFilter(q)
	filter.EventTypes = prActivityEventTypes

	rows, err := s.events.ListEventHeaders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list turnaround events: %w", err)
	}
	users := newUserFilter(q.Users, q.ExcludeUsers)

	var overall milestoneSet
	byRepo := map[string]*milestoneSet{}
	byReviewer := map[string]*reviewerSet{}

	for _, act := range sortedActivities(buildPRActivity(rows)) {
		if act.OpenedAt == nil {
			continue
		}
		opened := *act.OpenedAt

		if users.allows(act.Author) {
			milestones := measure(act)
			overall.add(milestones)
			repo, ok := byRepo[act.Key.Repository]
			if !ok {
				repo = &milestoneSet{}
				byRepo[act.Key.Repository] = repo
			}
			repo.add(milestones)
		}

		responded := map[string]bool{}
		for _, review := range act.Reviews {
			if review.Reviewer == "" || review.Reviewer == act.Author || !users.allows(review.Reviewer) {
				continue
			}
			rs, ok := byReviewer[review.Reviewer]
			if !ok {
				rs = &reviewerSet{repositories: map[string]bool{}}
				byReviewer[review.Reviewer] = rs
			}
			rs.totalReviews++
			rs.repositories[act.Key.Repository] = true
			if !responded[review.Reviewer] && !review.At.Before(opened) {
				responded[review.Reviewer] = true
				rs.responses = append(rs.responses, hoursBetween(opened, review.At))
			}
		}
	}

	result := &models.Turnaround{
		Summary: models.TurnaroundSummary{
			TurnaroundAverages: overall.averages(),
			TotalPRsAnalyzed:   overall.prs,
		},
		ByRepository: make([]models.RepositoryTurnaround, 0, len(byRepo)),
		ByReviewer:   make([]models.ReviewerTurnaround, 0, len(byReviewer)),
	}

	for name, set := range byRepo {
		result.ByRepository = append(result.ByRepository, models.RepositoryTurnaround{
			Repository:         name,
			TurnaroundAverages: set.averages(),
			TotalPRs:           set.prs,
		})
	}
	sort.Slice(result.ByRepository, func(i, j int) bool {
		a, b := result.ByRepository[i], result.ByRepository[j]
		if a.TotalPRs != b.TotalPRs {
			return a.TotalPRs > b.TotalPRs
		}
		return a.Repository < b.Repository
	})

	for reviewer, rs := range byReviewer {
		repos := make([]string, 0, len(rs.repositories))
		for repo := range rs.repositories {
			repos = append(repos, repo)
		}
		sort.Strings(repos)
		result.ByReviewer = append(result.ByReviewer, models.ReviewerTurnaround{
			Reviewer:             reviewer,
			AvgResponseTimeHours: averageHours(rs.responses),
			TotalReviews:         rs.totalReviews,
			RepositoriesReviewed: repos,
		})
	}
	sort.Slice(result.ByReviewer, func(i, j int) bool {
		a, b := result.ByReviewer[i], result.ByReviewer[j]
		if a.TotalReviews != b.TotalReviews {
			return a.TotalReviews > b.TotalReviews
		}
		return a.Reviewer < b.Reviewer
	})

	return result, nil
}

// measure finds each milestone of one PR; events before opened are ignored
func measure(act *prActivity) prMilestones {
	opened := *act.OpenedAt
	var m prMilestones

	since := func(at time.Time) *float64 {
		if at.Before(opened) {
			return nil
		}
		h := hoursBetween(opened, at)
		return &h
	}

	for _, review := range act.Reviews {
		if review.Reviewer == act.Author {
			continue
		}
		if m.firstReview == nil {
			m.firstReview = since(review.At)
		}
		if m.firstChangesRequested == nil && review.State == "changes_requested" {
			m.firstChangesRequested = since(review.At)
		}
	}
	for _, label := range act.Labels {
		if m.approval == nil && strings.HasPrefix(label.Name, approvedLabelPrefix) {
			m.approval = since(label.At)
		}
		if m.firstVerified == nil && strings.Contains(strings.ToLower(label.Name), "verified") {
			m.firstVerified = since(label.At)
		}
	}
	if act.ClosedAt != nil {
		m.lifecycle = since(*act.ClosedAt)
	}
	return m
}
