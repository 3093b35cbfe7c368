package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

// EventSource reads stored deliveries in ingestion order
type EventSource interface {
	ListEvents(ctx context.Context, filter models.WebhookFilter) ([]*models.WebhookEvent, error)
	ListEventHeaders(ctx context.Context, filter models.WebhookFilter) ([]*models.WebhookEvent, error)
}

// prEventTypes are the PR-scoped deliveries that feed a story
var prEventTypes = []string{
	"pull_request",
	"pull_request_review",
	"issue_comment",
	"pull_request_review_comment",
	"check_run",
}

type dispatchKey struct {
	eventType string
	action    string
	state     string
}

// timelineDispatch maps (event type, action, state) to a narrative event.
// Anything missing here is not part of the story.
var timelineDispatch = map[dispatchKey]models.TimelineEventType{
	{"pull_request", "opened", ""}:                            models.TimelinePROpened,
	{"pull_request", "closed", ""}:                            models.TimelinePRClosed,
	{"pull_request", "closed", "merged"}:                      models.TimelinePRMerged,
	{"pull_request", "reopened", ""}:                          models.TimelinePRReopened,
	{"pull_request", "synchronize", ""}:                       models.TimelineCommit,
	{"pull_request", "review_requested", ""}:                  models.TimelineReviewRequested,
	{"pull_request", "labeled", ""}:                           models.TimelineLabelAdded,
	{"pull_request", "unlabeled", ""}:                         models.TimelineLabelRemoved,
	{"pull_request", "ready_for_review", ""}:                  models.TimelineReadyForReview,
	{"pull_request", "converted_to_draft", ""}:                models.TimelineConvertedToDraft,
	{"pull_request_review", "submitted", "approved"}:          models.TimelineReviewApproved,
	{"pull_request_review", "submitted", "changes_requested"}: models.TimelineReviewChanges,
	{"pull_request_review", "submitted", "commented"}:         models.TimelineReviewCommented,
	{"issue_comment", "created", ""}:                          models.TimelineComment,
	{"pull_request_review_comment", "created", ""}:            models.TimelineComment,
	{"check_run", "created", ""}:                              models.TimelineCheckRun,
	{"check_run", "completed", ""}:                            models.TimelineCheckRunCompleted,
	{"push", "", ""}:                                          models.TimelineCommit,
}

type TimelineService struct {
	events EventSource
}

func NewTimelineService(events EventSource) *TimelineService {
	return &TimelineService{events: events}
}

// BuildTimeline reconstructs the story of one pull request from its stored deliveries.
// A PR without deliveries yields an empty story rather than an error.
func (s *TimelineService) BuildTimeline(ctx context.Context, repository string, prNumber int) (*models.PRStory, error) {
	story := &models.PRStory{Events: []models.PRTimelineEvent{}}

	number := prNumber
	rows, err := s.events.ListEvents(ctx, models.WebhookFilter{
		Repositories: []string{repository},
		EventTypes:   prEventTypes,
		PRNumber:     &number,
	})
	if err != nil {
		return nil, fmt.Errorf("list events for %s#%d: %w", repository, prNumber, err)
	}
	if len(rows) == 0 {
		return story, nil
	}

	story.PR = latestPRInfo(rows)

	if story.PR != nil && story.PR.HeadRef != "" {
		var until *time.Time
		if story.PR.State == "closed" {
			until = lastClosedAt(rows)
		}
		pushes, err := s.branchPushes(ctx, repository, story.PR.HeadRef, rows[0].ReceivedAt, until)
		if err != nil {
			return nil, err
		}
		rows = append(rows, pushes...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	}

	story.Events = mapTimeline(rows)
	story.Summary = summarizeTimeline(story.Events)
	return story, nil
}

// lastClosedAt returns when the final close of the PR was received, or nil if none is stored
func lastClosedAt(rows []*models.WebhookEvent) *time.Time {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].EventType == "pull_request" && rows[i].Action == "closed" {
			at := rows[i].ReceivedAt
			return &at
		}
	}
	return nil
}

// branchPushes returns pushes to the PR's head branch received between the PR's first
// delivery and its close. An open PR has no upper bound.
func (s *TimelineService) branchPushes(ctx context.Context, repository, headRef string, since time.Time, until *time.Time) ([]*models.WebhookEvent, error) {
	rows, err := s.events.ListEvents(ctx, models.WebhookFilter{
		Repositories: []string{repository},
		EventTypes:   []string{"push"},
		Start:        &since,
		End:          until,
	})
	if err != nil {
		return nil, fmt.Errorf("list pushes for %s: %w", repository, err)
	}

	ref := "refs/heads/" + headRef
	matching := make([]*models.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		event, err := github.ParseWebHook(row.EventType, row.Payload)
		if err != nil {
			continue
		}
		if push, ok := event.(*github.PushEvent); ok && push.GetRef() == ref {
			matching = append(matching, row)
		}
	}
	return matching, nil
}

// latestPRInfo describes the PR from the most recent pull_request delivery
func latestPRInfo(rows []*models.WebhookEvent) *models.PRInfo {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].EventType != "pull_request" {
			continue
		}
		event, err := github.ParseWebHook(rows[i].EventType, rows[i].Payload)
		if err != nil {
			continue
		}
		prEvent, ok := event.(*github.PullRequestEvent)
		if !ok || prEvent.GetPullRequest() == nil {
			continue
		}
		pr := prEvent.GetPullRequest()
		return &models.PRInfo{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			State:     pr.GetState(),
			Author:    pr.GetUser().GetLogin(),
			URL:       pr.GetHTMLURL(),
			Merged:    pr.GetMerged(),
			Draft:     pr.GetDraft(),
			HeadRef:   pr.GetHead().GetRef(),
			BaseRef:   pr.GetBase().GetRef(),
			CreatedAt: pr.GetCreatedAt().Time,
			UpdatedAt: pr.GetUpdatedAt().Time,
		}
	}
	return nil
}

// mapTimeline maps rows to events, folds check-run completions into their run,
// collapses commits seen both as a push and a synchronize, and sorts by time
func mapTimeline(rows []*models.WebhookEvent) []models.PRTimelineEvent {
	events := make([]models.PRTimelineEvent, 0, len(rows))
	checkRuns := make(map[int64]int)
	commits := make(map[string]int)

	for _, row := range rows {
		event, checkRunID, ok, err := mapRow(row)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"delivery_id": row.DeliveryID,
				"event_type":  row.EventType,
			}).WithError(err).Warn("Skipping malformed payload in timeline")
			continue
		}
		if !ok {
			continue
		}

		if checkRunID != 0 {
			if idx, seen := checkRuns[checkRunID]; seen {
				events[idx].Children = append(events[idx].Children, event)
				continue
			}
			checkRuns[checkRunID] = len(events)
		}
		if event.EventType == models.TimelineCommit && event.Commit != "" {
			if idx, seen := commits[event.Commit]; seen {
				mergeCommit(&events[idx], event, row.EventType == "push")
				continue
			}
			commits[event.Commit] = len(events)
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// mergeCommit folds a second sighting of the same commit into the first.
// The earlier timestamp wins; a push carries the commit message and URL.
func mergeCommit(dst *models.PRTimelineEvent, dup models.PRTimelineEvent, fromPush bool) {
	if dup.Timestamp.Before(dst.Timestamp) {
		dst.Timestamp = dup.Timestamp
	}
	if fromPush {
		dst.Description, dst.URL, dst.Actor = dup.Description, dup.URL, dup.Actor
	}
}

// mapRow translates one delivery through the dispatch table
func mapRow(row *models.WebhookEvent) (models.PRTimelineEvent, int64, bool, error) {
	var ev models.PRTimelineEvent

	payload, err := github.ParseWebHook(row.EventType, row.Payload)
	if err != nil {
		return ev, 0, false, err
	}

	var (
		key        dispatchKey
		ts         github.Timestamp
		checkRunID int64
	)

	switch p := payload.(type) {
	case *github.PullRequestEvent:
		pr := p.GetPullRequest()
		key = dispatchKey{row.EventType, p.GetAction(), ""}
		if p.GetAction() == "closed" && pr.GetMerged() {
			key.state = "merged"
		}
		ev.Actor = p.GetSender().GetLogin()
		ev.URL = pr.GetHTMLURL()
		ts = pr.GetUpdatedAt()

		switch timelineDispatch[key] {
		case models.TimelinePROpened:
			ts = pr.GetCreatedAt()
			ev.Description = pr.GetTitle()
			ev.Body = pr.GetBody()
		case models.TimelinePRMerged:
			ts = pr.GetMergedAt()
			ev.Description = "Merged into " + pr.GetBase().GetRef()
			ev.Commit = pr.GetMergeCommitSHA()
		case models.TimelinePRClosed:
			ts = pr.GetClosedAt()
		case models.TimelineCommit:
			ev.Commit = p.GetAfter()
			ev.Description = "New commits pushed"
		case models.TimelineReviewRequested:
			if reviewer := p.GetRequestedReviewer().GetLogin(); reviewer != "" {
				ev.Description = "Review requested from " + reviewer
			} else {
				ev.Description = "Review requested from team " + p.GetRequestedTeam().GetName()
			}
		case models.TimelineLabelAdded, models.TimelineLabelRemoved:
			ev.Description = p.GetLabel().GetName()
		}

	case *github.PullRequestReviewEvent:
		review := p.GetReview()
		key = dispatchKey{row.EventType, p.GetAction(), strings.ToLower(review.GetState())}
		ts = review.GetSubmittedAt()
		ev.Actor = review.GetUser().GetLogin()
		ev.Body = review.GetBody()
		ev.URL = review.GetHTMLURL()
		ev.Commit = review.GetCommitID()

	case *github.IssueCommentEvent:
		comment := p.GetComment()
		key = dispatchKey{row.EventType, p.GetAction(), ""}
		ts = comment.GetCreatedAt()
		ev.Actor = comment.GetUser().GetLogin()
		ev.Body = comment.GetBody()
		ev.URL = comment.GetHTMLURL()

	case *github.PullRequestReviewCommentEvent:
		comment := p.GetComment()
		key = dispatchKey{row.EventType, p.GetAction(), ""}
		ts = comment.GetCreatedAt()
		ev.Actor = comment.GetUser().GetLogin()
		ev.Description = comment.GetPath()
		ev.Body = comment.GetBody()
		ev.URL = comment.GetHTMLURL()
		ev.Commit = comment.GetCommitID()

	case *github.CheckRunEvent:
		run := p.GetCheckRun()
		key = dispatchKey{row.EventType, p.GetAction(), ""}
		checkRunID = run.GetID()
		ts = run.GetStartedAt()
		ev.Description = run.GetName()
		if p.GetAction() == "completed" {
			ts = run.GetCompletedAt()
			ev.Description = run.GetName() + ": " + run.GetConclusion()
		}
		ev.URL = run.GetHTMLURL()
		ev.Commit = run.GetHeadSHA()

	case *github.PushEvent:
		head := p.GetHeadCommit()
		key = dispatchKey{row.EventType, "", ""}
		ts = head.GetTimestamp()
		ev.Actor = p.GetSender().GetLogin()
		ev.Commit = p.GetAfter()
		if ev.Commit == "" {
			ev.Commit = head.GetID()
		}
		ev.Description, _, _ = strings.Cut(head.GetMessage(), "\n")
		ev.URL = head.GetURL()

	default:
		return ev, 0, false, nil
	}

	kind, ok := timelineDispatch[key]
	if !ok {
		return ev, 0, false, nil
	}
	ev.EventType = kind
	ev.Timestamp = ts.Time.UTC()
	if ts.IsZero() {
		ev.Timestamp = row.ReceivedAt
	}
	if ev.Actor == "" {
		ev.Actor = row.Sender
	}
	return ev, checkRunID, true, nil
}

func summarizeTimeline(events []models.PRTimelineEvent) models.StorySummary {
	var summary models.StorySummary
	commits := make(map[string]struct{})

	for _, ev := range events {
		switch {
		case ev.EventType == models.TimelineCommit:
			if ev.Commit == "" {
				summary.TotalCommits++
				continue
			}
			if _, seen := commits[ev.Commit]; !seen {
				commits[ev.Commit] = struct{}{}
				summary.TotalCommits++
			}
		case ev.EventType.IsReview():
			summary.TotalReviews++
		case ev.EventType == models.TimelineComment:
			summary.TotalComments++
		case ev.EventType == models.TimelineCheckRun, ev.EventType == models.TimelineCheckRunCompleted:
			summary.TotalCheckRuns++
		}
	}
	return summary
}
