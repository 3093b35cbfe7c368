package models

import (
	"time"
)

// PullRequest is the latest known state of a PR, rebuilt from pull_request deliveries
type PullRequest struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Owner        string    `json:"owner"`
	Repository   string    `json:"repository"`
	State        string    `json:"state"`
	Merged       bool      `json:"merged"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CommitsCount int       `json:"commits_count"`
	HeadSHA      string    `json:"head_sha"`
}

// PRKey identifies a PR across repositories
type PRKey struct {
	Repository string
	Number     int
}
