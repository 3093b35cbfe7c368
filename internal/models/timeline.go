package models

import "time"

type TimelineEventType string

const (
	TimelinePROpened          TimelineEventType = "pr_opened"
	TimelinePRClosed          TimelineEventType = "pr_closed"
	TimelinePRMerged          TimelineEventType = "pr_merged"
	TimelinePRReopened        TimelineEventType = "pr_reopened"
	TimelineCommit            TimelineEventType = "commit"
	TimelineReviewApproved    TimelineEventType = "review_approved"
	TimelineReviewChanges     TimelineEventType = "review_changes"
	TimelineReviewCommented   TimelineEventType = "review_commented"
	TimelineComment           TimelineEventType = "comment"
	TimelineReviewRequested   TimelineEventType = "review_requested"
	TimelineLabelAdded        TimelineEventType = "label_added"
	TimelineLabelRemoved      TimelineEventType = "label_removed"
	TimelineCheckRun          TimelineEventType = "check_run"
	TimelineCheckRunCompleted TimelineEventType = "check_run_completed"
	TimelineReadyForReview    TimelineEventType = "ready_for_review"
	TimelineConvertedToDraft  TimelineEventType = "converted_to_draft"
)

// IsReview reports whether the event is one of the review_* kinds
func (t TimelineEventType) IsReview() bool {
	return t == TimelineReviewApproved || t == TimelineReviewChanges || t == TimelineReviewCommented
}

// PRTimelineEvent is derived from stored deliveries on every read
type PRTimelineEvent struct {
	EventType   TimelineEventType `json:"event_type"`
	Timestamp   time.Time         `json:"timestamp"`
	Actor       string            `json:"actor,omitempty"`
	Description string            `json:"description,omitempty"`
	Body        string            `json:"body,omitempty"`
	URL         string            `json:"url,omitempty"`
	Commit      string            `json:"commit,omitempty"`
	Children    []PRTimelineEvent `json:"children,omitempty"`
}

type PRInfo struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Merged    bool      `json:"merged"`
	Draft     bool      `json:"draft"`
	HeadRef   string    `json:"head_ref"`
	BaseRef   string    `json:"base_ref"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StorySummary struct {
	TotalCommits   int `json:"total_commits"`
	TotalReviews   int `json:"total_reviews"`
	TotalCheckRuns int `json:"total_check_runs"`
	TotalComments  int `json:"total_comments"`
}

type PRStory struct {
	PR      *PRInfo           `json:"pr"`
	Events  []PRTimelineEvent `json:"events"`
	Summary StorySummary      `json:"summary"`
}
