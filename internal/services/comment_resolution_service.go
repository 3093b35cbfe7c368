package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/google/go-github/v57/github"
)

// canBeMergedCheck is the check run that marks a PR as mergeable
const canBeMergedCheck = "can-be-merged"

type threadState struct {
	nodeID     string
	repository string
	prNumber   int
	comments   []*github.PullRequestComment
	resolved   bool
	resolvedAt *time.Time
	resolver   string
}

type CommentResolutionService struct {
	events EventSource
}

func NewCommentResolutionService(events EventSource) *CommentResolutionService {
	return &CommentResolutionService{events: events}
}

// GetCommentResolution reports how review threads get answered and resolved
func (s *CommentResolutionService) GetCommentResolution(ctx context.Context, q models.MetricsQuery) (*models.CommentResolution, error) {
	filter := windowFilter(q)
	filter.EventTypes = []string{"pull_request_review_thread", "check_run"}

	rows, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list review threads: %w", err)
	}

	threads := map[string]*threadState{}
	var order []string
	canBeMerged := map[models.PRKey]time.Time{}

	for _, row := range rows {
		event, err := github.ParseWebHook(row.EventType, row.Payload)
		if err != nil {
			continue
		}

		switch e := event.(type) {
		case *github.CheckRunEvent:
			run := e.GetCheckRun()
			if row.PRNumber == nil || run.GetName() != canBeMergedCheck || run.GetConclusion() != "success" {
				continue
			}
			at := run.GetCompletedAt().Time
			if at.IsZero() {
				at = row.ReceivedAt
			}
			key := models.PRKey{Repository: row.Repository, Number: *row.PRNumber}
			if first, ok := canBeMerged[key]; !ok || at.Before(first) {
				canBeMerged[key] = at.UTC()
			}

		case *github.PullRequestReviewThreadEvent:
			nodeID := e.GetThread().GetNodeID()
			if nodeID == "" || row.PRNumber == nil {
				continue
			}
			th, ok := threads[nodeID]
			if !ok {
				th = &threadState{nodeID: nodeID, repository: row.Repository, prNumber: *row.PRNumber}
				threads[nodeID] = th
				order = append(order, nodeID)
			}
			if comments := e.GetThread().Comments; len(comments) > 0 {
				th.comments = comments
			}
			switch row.Action {
			case "resolved":
				at := row.ReceivedAt
				th.resolved, th.resolvedAt, th.resolver = true, &at, row.Sender
			case "unresolved":
				th.resolved, th.resolvedAt, th.resolver = false, nil, ""
			}
		}
	}

	result := &models.CommentResolution{
		ByRepository: make([]models.RepositoryResolution, 0),
	}

	all := make([]models.CommentThread, 0, len(threads))
	var resolutions, responses []float64
	totalComments, resolvedCount := 0, 0
	repoStats := map[string]*models.RepositoryResolution{}
	repoHours := map[string][]float64{}

	for _, nodeID := range order {
		th := threads[nodeID]
		thread := buildThread(th, canBeMerged)
		all = append(all, thread)

		totalComments += thread.CommentCount
		if thread.TimeToFirstResponseHours != nil {
			responses = append(responses, *thread.TimeToFirstResponseHours)
		}

		rs, ok := repoStats[th.repository]
		if !ok {
			rs = &models.RepositoryResolution{Repository: th.repository}
			repoStats[th.repository] = rs
		}
		rs.TotalThreads++
		if th.resolved {
			resolvedCount++
			rs.ResolvedThreads++
			if thread.ResolutionTimeHours != nil {
				resolutions = append(resolutions, *thread.ResolutionTimeHours)
				repoHours[th.repository] = append(repoHours[th.repository], *thread.ResolutionTimeHours)
			}
		}
	}

	result.Summary = models.CommentResolutionSummary{
		AvgResolutionTimeHours:      averageHours(resolutions),
		MedianResolutionTimeHours:   medianHours(resolutions),
		AvgTimeToFirstResponseHours: averageHours(responses),
		TotalThreadsAnalyzed:        len(all),
	}
	if len(all) > 0 {
		result.Summary.AvgCommentsPerThread = round1(float64(totalComments) / float64(len(all)))
		result.Summary.ResolutionRate = round1(float64(resolvedCount) * 100 / float64(len(all)))
	}

	for repo, rs := range repoStats {
		rs.AvgResolutionTimeHours = averageHours(repoHours[repo])
		result.ByRepository = append(result.ByRepository, *rs)
	}
	sort.Slice(result.ByRepository, func(i, j int) bool {
		a, b := result.ByRepository[i], result.ByRepository[j]
		if a.TotalThreads != b.TotalThreads {
			return a.TotalThreads > b.TotalThreads
		}
		return a.Repository < b.Repository
	})

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].FirstCommentAt, all[j].FirstCommentAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	page := models.Paginate(all, q.Page, q.PageSize)
	result.Threads = page.Data
	result.Pagination = page.Pagination

	return result, nil
}

func buildThread(th *threadState, canBeMerged map[models.PRKey]time.Time) models.CommentThread {
	thread := models.CommentThread{
		ThreadNodeID: th.nodeID,
		Repository:   th.repository,
		PRNumber:     th.prNumber,
		CommentCount: len(th.comments),
		Participants: make([]string, 0),
		Resolver:     th.resolver,
	}

	seen := map[string]bool{}
	for i, c := range th.comments {
		if i == 0 {
			thread.FilePath = c.GetPath()
			thread.FirstCommentAt = timePtr(c.GetCreatedAt().Time)
		}
		if i == 1 {
			thread.TimeToFirstResponseHours = hoursPtr(thread.FirstCommentAt, timePtr(c.GetCreatedAt().Time))
		}
		if login := c.GetUser().GetLogin(); login != "" && !seen[login] {
			seen[login] = true
			thread.Participants = append(thread.Participants, login)
		}
	}

	if th.resolved && th.resolvedAt != nil {
		thread.ResolvedAt = timePtr(*th.resolvedAt)
		thread.ResolutionTimeHours = hoursPtr(thread.FirstCommentAt, thread.ResolvedAt)
	}
	if at, ok := canBeMerged[models.PRKey{Repository: th.repository, Number: th.prNumber}]; ok {
		thread.CanBeMergedAt = timePtr(at)
		thread.TimeFromCanBeMergedHours = hoursPtr(thread.CanBeMergedAt, thread.ResolvedAt)
	}
	return thread
}
