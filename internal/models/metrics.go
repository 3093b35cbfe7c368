package models

import "time"

// MetricsQuery carries the filters shared by the metrics endpoints
type MetricsQuery struct {
	Start        *time.Time
	End          *time.Time
	Repositories []string
	Users        []string
	ExcludeUsers []string
	Page         int
	PageSize     int
}

type RepositoryShare struct {
	Repository  string  `json:"repository"`
	TotalEvents int     `json:"total_events"`
	Percentage  float64 `json:"percentage"`
}

type SummaryStats struct {
	TotalEvents         int     `json:"total_events"`
	SuccessfulEvents    int     `json:"successful_events"`
	FailedEvents        int     `json:"failed_events"`
	SuccessRate         float64 `json:"success_rate"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	UniqueRepositories  int     `json:"unique_repositories"`
	UniqueSenders       int     `json:"unique_senders"`
}

type Summary struct {
	Summary               SummaryStats      `json:"summary"`
	EventTypeDistribution map[string]int    `json:"event_type_distribution"`
	TopRepositories       []RepositoryShare `json:"top_repositories"`
}

type RepositoryStats struct {
	Repository          string  `json:"repository"`
	TotalEvents         int     `json:"total_events"`
	SuccessfulEvents    int     `json:"successful_events"`
	FailedEvents        int     `json:"failed_events"`
	SuccessRate         float64 `json:"success_rate"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
}

type TrendBucket struct {
	Bucket           time.Time `json:"bucket"`
	TotalEvents      int       `json:"total_events"`
	SuccessfulEvents int       `json:"successful_events"`
	FailedEvents     int       `json:"failed_events"`
}

type PRCreatorStats struct {
	User       string  `json:"user"`
	TotalPRs   int     `json:"total_prs"`
	MergedPRs  int     `json:"merged_prs"`
	ClosedPRs  int     `json:"closed_prs"`
	AvgCommits float64 `json:"avg_commits"`
}

type PRReviewerStats struct {
	User         string `json:"user"`
	TotalReviews int    `json:"total_reviews"`
	PRsReviewed  int    `json:"prs_reviewed"`
}

type PRApproverStats struct {
	User           string `json:"user"`
	TotalApprovals int    `json:"total_approvals"`
	PRsApproved    int    `json:"prs_approved"`
}

type PRLgtmStats struct {
	User      string `json:"user"`
	TotalLgtm int    `json:"total_lgtm"`
	PRsLgtm   int    `json:"prs_lgtm"`
}

type Contributors struct {
	PRCreators  Page[PRCreatorStats]  `json:"pr_creators"`
	PRReviewers Page[PRReviewerStats] `json:"pr_reviewers"`
	PRApprovers Page[PRApproverStats] `json:"pr_approvers"`
	PRLgtm      Page[PRLgtmStats]     `json:"pr_lgtm"`
}

// TurnaroundAverages holds hour averages; nil means no PR had the milestone
type TurnaroundAverages struct {
	AvgTimeToFirstReviewHours           *float64 `json:"avg_time_to_first_review_hours"`
	AvgTimeToApprovalHours              *float64 `json:"avg_time_to_approval_hours"`
	AvgTimeToFirstVerifiedHours         *float64 `json:"avg_time_to_first_verified_hours"`
	AvgTimeToFirstChangesRequestedHours *float64 `json:"avg_time_to_first_changes_requested_hours"`
	AvgPRLifecycleHours                 *float64 `json:"avg_pr_lifecycle_hours"`
}

type TurnaroundSummary struct {
	TurnaroundAverages
	TotalPRsAnalyzed int `json:"total_prs_analyzed"`
}

type RepositoryTurnaround struct {
	Repository string `json:"repository"`
	TurnaroundAverages
	TotalPRs int `json:"total_prs"`
}

type ReviewerTurnaround struct {
	Reviewer             string   `json:"reviewer"`
	AvgResponseTimeHours *float64 `json:"avg_response_time_hours"`
	TotalReviews         int      `json:"total_reviews"`
	RepositoriesReviewed []string `json:"repositories_reviewed"`
}

type Turnaround struct {
	Summary      TurnaroundSummary      `json:"summary"`
	ByRepository []RepositoryTurnaround `json:"by_repository"`
	ByReviewer   []ReviewerTurnaround   `json:"by_reviewer"`
}

type CommentThread struct {
	ThreadNodeID             string     `json:"thread_node_id"`
	Repository               string     `json:"repository"`
	PRNumber                 int        `json:"pr_number"`
	FilePath                 string     `json:"file_path"`
	CommentCount             int        `json:"comment_count"`
	FirstCommentAt           *time.Time `json:"first_comment_at"`
	TimeToFirstResponseHours *float64   `json:"time_to_first_response_hours"`
	ResolvedAt               *time.Time `json:"resolved_at"`
	ResolutionTimeHours      *float64   `json:"resolution_time_hours"`
	Resolver                 string     `json:"resolver,omitempty"`
	Participants             []string   `json:"participants"`
	CanBeMergedAt            *time.Time `json:"can_be_merged_at"`
	TimeFromCanBeMergedHours *float64   `json:"time_from_can_be_merged_hours"`
}

type CommentResolutionSummary struct {
	AvgResolutionTimeHours      *float64 `json:"avg_resolution_time_hours"`
	MedianResolutionTimeHours   *float64 `json:"median_resolution_time_hours"`
	AvgTimeToFirstResponseHours *float64 `json:"avg_time_to_first_response_hours"`
	AvgCommentsPerThread        float64  `json:"avg_comments_per_thread"`
	TotalThreadsAnalyzed        int      `json:"total_threads_analyzed"`
	ResolutionRate              float64  `json:"resolution_rate"`
}

type RepositoryResolution struct {
	Repository             string   `json:"repository"`
	AvgResolutionTimeHours *float64 `json:"avg_resolution_time_hours"`
	TotalThreads           int      `json:"total_threads"`
	ResolvedThreads        int      `json:"resolved_threads"`
}

type CommentResolution struct {
	Summary      CommentResolutionSummary `json:"summary"`
	ByRepository []RepositoryResolution   `json:"by_repository"`
	Threads      []CommentThread          `json:"threads"`
	Pagination   Pagination               `json:"pagination"`
}
