package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

// deliveryMetadata is what ingestion pulls out of a payload into indexed columns
type deliveryMetadata struct {
	Repository  string
	Action      string
	Sender      string
	PRNumber    *int
	PRAuthor    string
	LabelName   string
	PRLabels    []string
	IsPRReview  bool
	ReviewState string
}

// envelope is the shape every GitHub event shares
type envelope struct {
	Action     string `json:"action"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender *struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// extractMetadata reads the indexed columns from a delivery.
// ErrMalformedBody means nothing can be stored; any other error means the
// body is JSON but does not decode as the typed event, so the row is kept as failed.
func extractMetadata(eventType string, body []byte) (deliveryMetadata, error) {
	var meta deliveryMetadata

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return meta, ErrMalformedBody
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return meta, ErrMalformedBody
	}
	meta.Action = env.Action
	if env.Repository != nil {
		meta.Repository = env.Repository.FullName
	}
	if env.Sender != nil {
		meta.Sender = env.Sender.Login
	}

	if !isTypedEvent(eventType) {
		return meta, nil
	}

	event, err := github.ParseWebHook(eventType, trimmed)
	if err != nil {
		return meta, fmt.Errorf("decode %s payload: %w", eventType, err)
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		number := e.GetNumber()
		if number == 0 {
			number = e.GetPullRequest().GetNumber()
		}
		meta.PRNumber = intPtr(number)
		meta.PRAuthor = e.GetPullRequest().GetUser().GetLogin()
		meta.LabelName = e.GetLabel().GetName()
		meta.PRLabels = labelNames(e.GetPullRequest())
	case *github.PullRequestReviewEvent:
		meta.PRNumber = intPtr(e.GetPullRequest().GetNumber())
		meta.PRAuthor = e.GetPullRequest().GetUser().GetLogin()
		meta.PRLabels = labelNames(e.GetPullRequest())
		meta.IsPRReview = true
		meta.ReviewState = strings.ToLower(e.GetReview().GetState())
	case *github.PullRequestReviewCommentEvent:
		meta.PRNumber = intPtr(e.GetPullRequest().GetNumber())
		meta.PRAuthor = e.GetPullRequest().GetUser().GetLogin()
	case *github.PullRequestReviewThreadEvent:
		meta.PRNumber = intPtr(e.GetPullRequest().GetNumber())
		meta.PRAuthor = e.GetPullRequest().GetUser().GetLogin()
	case *github.IssueCommentEvent:
		if e.GetIssue().IsPullRequest() {
			meta.PRNumber = intPtr(e.GetIssue().GetNumber())
			meta.PRAuthor = e.GetIssue().GetUser().GetLogin()
		}
	case *github.CheckRunEvent:
		if prs := e.GetCheckRun().PullRequests; len(prs) > 0 {
			meta.PRNumber = intPtr(prs[0].GetNumber())
		}
	}
	return meta, nil
}

// typedEvents are the event types whose payloads are decoded with go-github
var typedEvents = map[string]bool{
	"pull_request":                true,
	"pull_request_review":         true,
	"pull_request_review_comment": true,
	"pull_request_review_thread":  true,
	"issue_comment":               true,
	"check_run":                   true,
	"push":                        true,
}

func isTypedEvent(eventType string) bool {
	return typedEvents[eventType]
}

func intPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func labelNames(pr *github.PullRequest) []string {
	if pr == nil {
		return nil
	}
	names := make([]string, 0, len(pr.Labels))
	for _, label := range pr.Labels {
		names = append(names, label.GetName())
	}
	return names
}

// TeamResolver attributes reviews to teams for cross-team analysis
type TeamResolver struct {
	members map[string]string
}

func NewTeamResolver(members map[string]string) *TeamResolver {
	if members == nil {
		members = map[string]string{}
	}
	return &TeamResolver{members: members}
}

// Resolve returns reviewer team, PR team and whether they differ.
// A "sig-<team>" label on the PR wins over the author's team.
func (r *TeamResolver) Resolve(reviewer, author string, prLabels []string) (string, string, bool) {
	reviewerTeam := r.members[reviewer]

	prTeam := ""
	for _, label := range prLabels {
		if team, ok := strings.CutPrefix(label, "sig-"); ok && team != "" {
			prTeam = team
			break
		}
	}
	if prTeam == "" {
		prTeam = r.members[author]
	}

	crossTeam := reviewerTeam != "" && prTeam != "" && reviewerTeam != prTeam
	return reviewerTeam, prTeam, crossTeam
}
