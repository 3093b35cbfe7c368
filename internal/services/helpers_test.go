package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alimgiray/hookmetrics/internal/repositories"
	"github.com/alimgiray/hookmetrics/pkg/config"
	"github.com/alimgiray/hookmetrics/pkg/database"
	"github.com/alimgiray/hookmetrics/pkg/metrics"
	"github.com/stretchr/testify/require"
)

const testSecret = "It's a Secret to Everybody"

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver:       "sqlite3",
		URL:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, "sqlite3"))
	return db
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// harness ingests signed deliveries into an in-memory store at chosen times
type harness struct {
	t      *testing.T
	repo   *repositories.WebhookRepository
	ingest *IngestService
	seq    int
}

func newHarness(t *testing.T, teams map[string]string) *harness {
	t.Helper()
	repo := repositories.NewWebhookRepository(newTestDB(t))
	svc := NewIngestService(repo, NewAllowlist(), NewTeamResolver(teams), metrics.New(), IngestConfig{Secret: testSecret})
	return &harness{t: t, repo: repo, ingest: svc}
}

// deliver stores body as eventType received at the given time
func (h *harness) deliver(at time.Time, eventType, body string) *IngestResult {
	h.t.Helper()
	h.seq++
	h.ingest.now = func() time.Time { return at }

	result, err := h.ingest.Ingest(context.Background(), IngestRequest{
		DeliveryID: fmt.Sprintf("delivery-%d", h.seq),
		EventType:  eventType,
		Body:       []byte(body),
		Signature:  sign([]byte(body)),
		ClientIP:   "192.30.252.10",
	})
	require.NoError(h.t, err)
	return result
}

func ts(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func user(login string) map[string]interface{} {
	return map[string]interface{}{"login": login}
}

func repoJSON(fullName string) map[string]interface{} {
	return map[string]interface{}{"full_name": fullName}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

type prOpts struct {
	Title     string
	State     string
	HeadRef   string
	HeadSHA   string
	After     string
	Merged    bool
	Commits   int
	Labels    []string
	Label     string
	Requested string
	CreatedAt time.Time
	UpdatedAt time.Time
	MergedAt  time.Time
	ClosedAt  time.Time
}

func pullRequestObject(number int, author string, o prOpts) map[string]interface{} {
	labels := make([]map[string]interface{}, 0, len(o.Labels))
	for _, l := range o.Labels {
		labels = append(labels, map[string]interface{}{"name": l})
	}
	state := o.State
	if state == "" {
		state = "open"
	}
	return map[string]interface{}{
		"number":     number,
		"title":      o.Title,
		"state":      state,
		"user":       user(author),
		"html_url":   fmt.Sprintf("https://github.com/acme/pr/%d", number),
		"merged":     o.Merged,
		"commits":    o.Commits,
		"labels":     labels,
		"head":       map[string]interface{}{"ref": o.HeadRef, "sha": o.HeadSHA},
		"base":       map[string]interface{}{"ref": "main"},
		"created_at": ts(o.CreatedAt),
		"updated_at": ts(o.UpdatedAt),
		"merged_at":  ts(o.MergedAt),
		"closed_at":  ts(o.ClosedAt),
	}
}

func pullRequestPayload(action, repo string, number int, author, sender string, o prOpts) string {
	payload := map[string]interface{}{
		"action":       action,
		"number":       number,
		"pull_request": pullRequestObject(number, author, o),
		"repository":   repoJSON(repo),
		"sender":       user(sender),
	}
	if o.Label != "" {
		payload["label"] = map[string]interface{}{"name": o.Label}
	}
	if o.After != "" {
		payload["after"] = o.After
	}
	if o.Requested != "" {
		payload["requested_reviewer"] = user(o.Requested)
	}
	return mustJSON(payload)
}

func reviewPayload(repo string, number int, author, reviewer, state string, submittedAt time.Time, labels ...string) string {
	return mustJSON(map[string]interface{}{
		"action": "submitted",
		"review": map[string]interface{}{
			"id":           number*1000 + len(reviewer),
			"user":         user(reviewer),
			"state":        state,
			"body":         "review by " + reviewer,
			"submitted_at": ts(submittedAt),
		},
		"pull_request": pullRequestObject(number, author, prOpts{Labels: labels}),
		"repository":   repoJSON(repo),
		"sender":       user(reviewer),
	})
}

func issueCommentPayload(repo string, number int, author, commenter, body string, createdAt time.Time) string {
	return mustJSON(map[string]interface{}{
		"action": "created",
		"issue": map[string]interface{}{
			"number":       number,
			"user":         user(author),
			"pull_request": map[string]interface{}{"url": "https://api.github.com/pulls/1"},
		},
		"comment": map[string]interface{}{
			"user":       user(commenter),
			"body":       body,
			"created_at": ts(createdAt),
		},
		"repository": repoJSON(repo),
		"sender":     user(commenter),
	})
}

func checkRunPayload(action, repo string, number int, id int64, name, conclusion string, started, completed time.Time) string {
	status := "in_progress"
	if action == "completed" {
		status = "completed"
	}
	return mustJSON(map[string]interface{}{
		"action": action,
		"check_run": map[string]interface{}{
			"id":            id,
			"name":          name,
			"status":        status,
			"conclusion":    conclusion,
			"head_sha":      "abc123",
			"started_at":    ts(started),
			"completed_at":  ts(completed),
			"pull_requests": []map[string]interface{}{{"number": number}},
		},
		"repository": repoJSON(repo),
		"sender":     user("ci-bot"),
	})
}

type threadComment struct {
	Author string
	Path   string
	At     time.Time
}

func reviewThreadPayload(action, repo string, number int, sender, nodeID string, comments []threadComment) string {
	list := make([]map[string]interface{}, 0, len(comments))
	for _, c := range comments {
		list = append(list, map[string]interface{}{
			"user":       user(c.Author),
			"path":       c.Path,
			"body":       "comment",
			"created_at": ts(c.At),
		})
	}
	return mustJSON(map[string]interface{}{
		"action": action,
		"thread": map[string]interface{}{
			"node_id":  nodeID,
			"comments": list,
		},
		"pull_request": pullRequestObject(number, "alice", prOpts{}),
		"repository":   repoJSON(repo),
		"sender":       user(sender),
	})
}

func pushPayload(repo, ref, after, message, sender string, at time.Time) string {
	return mustJSON(map[string]interface{}{
		"ref":   ref,
		"after": after,
		"head_commit": map[string]interface{}{
			"id":        after,
			"message":   message,
			"timestamp": ts(at),
		},
		"repository": repoJSON(repo),
		"sender":     user(sender),
	})
}
