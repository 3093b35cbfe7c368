package services

import (
	"sort"
	"strings"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/google/go-github/v57/github"
)

const (
	approvedLabelPrefix = "approved-"
	lgtmLabelPrefix     = "lgtm-"
)

type reviewActivity struct {
	Reviewer string
	State    string
	At       time.Time
}

type labelActivity struct {
	Name string
	At   time.Time
}

// prActivity is everything the metrics need to know about one PR, folded from its deliveries
type prActivity struct {
	Key      models.PRKey
	Author   string
	Latest   *github.PullRequest
	OpenedAt *time.Time
	ClosedAt *time.Time
	Reviews  []reviewActivity
	Labels   []labelActivity
}

// reviewers returns distinct non-author reviewers
func (a *prActivity) reviewers() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range a.Reviews {
		if r.Reviewer == "" || r.Reviewer == a.Author || seen[r.Reviewer] {
			continue
		}
		seen[r.Reviewer] = true
		out = append(out, r.Reviewer)
	}
	return out
}

// labelUsers returns distinct users named by "<prefix><user>" labels
func (a *prActivity) labelUsers(prefix string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range a.Labels {
		user, ok := strings.CutPrefix(l.Name, prefix)
		if !ok || user == "" || seen[user] {
			continue
		}
		seen[user] = true
		out = append(out, user)
	}
	return out
}

// prActivityEventTypes are the deliveries buildPRActivity understands
var prActivityEventTypes = []string{"pull_request", "pull_request_review"}

// buildPRActivity folds pull_request and pull_request_review rows, given in ingestion order.
// Milestones use received_at so they line up with the stored event stream.
// Header-only rows leave Latest nil.
func buildPRActivity(rows []*models.WebhookEvent) map[models.PRKey]*prActivity {
	activities := make(map[models.PRKey]*prActivity)

	for _, row := range rows {
		if row.PRNumber == nil {
			continue
		}
		key := models.PRKey{Repository: row.Repository, Number: *row.PRNumber}
		act, ok := activities[key]
		if !ok {
			act = &prActivity{Key: key}
			activities[key] = act
		}
		if row.PRAuthor != "" {
			act.Author = row.PRAuthor
		}
		at := row.ReceivedAt

		switch row.EventType {
		case "pull_request":
			if len(row.Payload) > 0 {
				if event, err := github.ParseWebHook(row.EventType, row.Payload); err == nil {
					if e, ok := event.(*github.PullRequestEvent); ok && e.GetPullRequest() != nil {
						act.Latest = e.GetPullRequest()
					}
				}
			}
			switch row.Action {
			case "opened":
				if act.OpenedAt == nil {
					act.OpenedAt = &at
				}
			case "closed":
				if act.ClosedAt == nil {
					act.ClosedAt = &at
				}
			case "labeled":
				if row.LabelName != "" {
					act.Labels = append(act.Labels, labelActivity{Name: row.LabelName, At: at})
				}
			}
		case "pull_request_review":
			if row.Action != "submitted" {
				continue
			}
			act.Reviews = append(act.Reviews, reviewActivity{Reviewer: row.Sender, State: reviewState(row), At: at})
		}
	}
	return activities
}

// sortedActivities returns activities ordered by repository then PR number
func sortedActivities(activities map[models.PRKey]*prActivity) []*prActivity {
	out := make([]*prActivity, 0, len(activities))
	for _, act := range activities {
		out = append(out, act)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Repository != out[j].Key.Repository {
			return out[i].Key.Repository < out[j].Key.Repository
		}
		return out[i].Key.Number < out[j].Key.Number
	})
	return out
}
