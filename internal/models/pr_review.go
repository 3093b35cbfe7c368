package models

import (
	"time"
)

// CrossTeamReview is a review whose reviewer belongs to a different team than the PR
type CrossTeamReview struct {
	Repository   string    `json:"repository"`
	PRNumber     int       `json:"pr_number"`
	Reviewer     string    `json:"reviewer"`
	ReviewerTeam string    `json:"reviewer_team"`
	PRTeam       string    `json:"pr_team"`
	ReviewState  string    `json:"review_state"`
	CreatedAt    time.Time `json:"created_at"`
}

type TeamCount struct {
	Team  string `json:"team"`
	Count int    `json:"count"`
}

type TeamDynamicsSummary struct {
	TotalCrossTeamReviews int         `json:"total_cross_team_reviews"`
	ByReviewerTeam        []TeamCount `json:"by_reviewer_team"`
	ByPRTeam              []TeamCount `json:"by_pr_team"`
}

type TeamDynamics struct {
	Summary    TeamDynamicsSummary `json:"summary"`
	Data       []CrossTeamReview   `json:"data"`
	Pagination Pagination          `json:"pagination"`
}
