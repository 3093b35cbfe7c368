package services

import (
	"context"
	"testing"
	"time"

	"github.com/alimgiray/hookmetrics/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioTeams = map[string]string{"alice": "core", "bob": "web", "carol": "core"}

// seedPRScenario stores three PRs:
//
//	acme/api#1 by alice, reviewed by carol and bob, approved by bob, merged after 5h
//	acme/web#2 by bob, approved by alice, closed unmerged after 10h
//	acme/api#3 by alice, still open
func seedPRScenario(h *harness) {
	hr := func(n float64) time.Duration { return time.Duration(n * float64(time.Hour)) }
	t1 := t0.Add(24 * time.Hour)

	pr1 := func(action string, at time.Time, o prOpts) {
		o.HeadRef, o.CreatedAt, o.UpdatedAt = "feature-1", t0, at
		if o.Commits == 0 {
			o.Commits = 2
		}
		h.deliver(at, "pull_request", pullRequestPayload(action, "acme/api", 1, "alice", "alice", o))
	}
	pr1("opened", t0, prOpts{Title: "Retry uploads"})
	h.deliver(t0.Add(hr(1)), "pull_request_review", reviewPayload("acme/api", 1, "alice", "carol", "changes_requested", t0.Add(hr(1))))
	h.deliver(t0.Add(hr(2)), "pull_request_review", reviewPayload("acme/api", 1, "alice", "bob", "approved", t0.Add(hr(2))))
	h.deliver(t0.Add(hr(2.5)), "pull_request_review", reviewPayload("acme/api", 1, "alice", "bob", "commented", t0.Add(hr(2.5))))
	h.deliver(t0.Add(hr(2.5)), "pull_request_review", reviewPayload("acme/api", 1, "alice", "alice", "commented", t0.Add(hr(2.5))))
	pr1("labeled", t0.Add(hr(3)), prOpts{Title: "Retry uploads", Label: "approved-bob"})
	pr1("labeled", t0.Add(hr(3.5)), prOpts{Title: "Retry uploads", Label: "lgtm-carol"})
	pr1("labeled", t0.Add(hr(4)), prOpts{Title: "Retry uploads", Label: "Verified"})
	pr1("closed", t0.Add(hr(5)), prOpts{Title: "Retry uploads", State: "closed", Merged: true, Commits: 4})

	pr2 := func(action string, at time.Time, o prOpts) {
		o.CreatedAt, o.UpdatedAt, o.Commits = t1, at, 1
		h.deliver(at, "pull_request", pullRequestPayload(action, "acme/web", 2, "bob", "bob", o))
	}
	pr2("opened", t1, prOpts{Title: "New landing page"})
	h.deliver(t1.Add(hr(2)), "pull_request_review", reviewPayload("acme/web", 2, "bob", "alice", "approved", t1.Add(hr(2))))
	pr2("labeled", t1.Add(hr(2)), prOpts{Title: "New landing page", Label: "approved-alice"})
	pr2("closed", t1.Add(hr(10)), prOpts{Title: "New landing page", State: "closed"})

	h.deliver(t0.Add(hr(6)), "pull_request", pullRequestPayload("opened", "acme/api", 3, "alice", "alice", prOpts{
		Title: "Docs", Commits: 3, CreatedAt: t0.Add(hr(6)), UpdatedAt: t0.Add(hr(6)),
	}))
}

func pageQuery(q models.MetricsQuery) models.MetricsQuery {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 25
	}
	return q
}

func TestGetContributors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioTeams)
	seedPRScenario(h)
	svc := NewContributorService(h.repo)

	t.Run("All users", func(t *testing.T) {
		result, err := svc.GetContributors(ctx, pageQuery(models.MetricsQuery{}))
		require.NoError(t, err)

		assert.Equal(t, []models.PRCreatorStats{
			{User: "alice", TotalPRs: 2, MergedPRs: 1, ClosedPRs: 0, AvgCommits: 3.5},
			{User: "bob", TotalPRs: 1, MergedPRs: 0, ClosedPRs: 1, AvgCommits: 1},
		}, result.PRCreators.Data)

		assert.Equal(t, []models.PRReviewerStats{
			{User: "bob", TotalReviews: 2, PRsReviewed: 1},
			{User: "alice", TotalReviews: 1, PRsReviewed: 1},
			{User: "carol", TotalReviews: 1, PRsReviewed: 1},
		}, result.PRReviewers.Data)

		assert.Equal(t, []models.PRApproverStats{
			{User: "alice", TotalApprovals: 1, PRsApproved: 1},
			{User: "bob", TotalApprovals: 1, PRsApproved: 1},
		}, result.PRApprovers.Data)

		assert.Equal(t, []models.PRLgtmStats{
			{User: "carol", TotalLgtm: 1, PRsLgtm: 1},
		}, result.PRLgtm.Data)
		assert.Equal(t, 3, result.PRReviewers.Pagination.Total)
	})

	t.Run("Exclude users", func(t *testing.T) {
		result, err := svc.GetContributors(ctx, pageQuery(models.MetricsQuery{ExcludeUsers: []string{"bob"}}))
		require.NoError(t, err)

		require.Len(t, result.PRCreators.Data, 1)
		assert.Equal(t, "alice", result.PRCreators.Data[0].User)
		for _, r := range result.PRReviewers.Data {
			assert.NotEqual(t, "bob", r.User)
		}
		require.Len(t, result.PRApprovers.Data, 1)
		assert.Equal(t, "alice", result.PRApprovers.Data[0].User)
	})

	t.Run("Only selected users", func(t *testing.T) {
		result, err := svc.GetContributors(ctx, pageQuery(models.MetricsQuery{Users: []string{"carol"}}))
		require.NoError(t, err)

		assert.Empty(t, result.PRCreators.Data)
		assert.NotNil(t, result.PRCreators.Data)
		require.Len(t, result.PRReviewers.Data, 1)
		assert.Equal(t, "carol", result.PRReviewers.Data[0].User)
		require.Len(t, result.PRLgtm.Data, 1)
	})

	t.Run("Paginates each list", func(t *testing.T) {
		result, err := svc.GetContributors(ctx, models.MetricsQuery{Page: 2, PageSize: 2})
		require.NoError(t, err)

		require.Len(t, result.PRReviewers.Data, 1)
		assert.Equal(t, "carol", result.PRReviewers.Data[0].User)
		assert.True(t, result.PRReviewers.Pagination.HasPrev)
		assert.False(t, result.PRReviewers.Pagination.HasNext)
		assert.Empty(t, result.PRCreators.Data)
	})

	t.Run("Empty window", func(t *testing.T) {
		start := t0.Add(365 * 24 * time.Hour)
		result, err := svc.GetContributors(ctx, pageQuery(models.MetricsQuery{Start: &start}))
		require.NoError(t, err)
		assert.Empty(t, result.PRCreators.Data)
		assert.Equal(t, 0, result.PRCreators.Pagination.Total)
	})
}

func prNumbers(page *models.Page[models.PullRequest]) []int {
	out := make([]int, 0, len(page.Data))
	for _, pr := range page.Data {
		out = append(out, pr.Number)
	}
	return out
}

func TestGetUserPRs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, scenarioTeams)
	seedPRScenario(h)
	svc := NewContributorService(h.repo)

	testCases := []struct {
		name     string
		role     string
		query    models.MetricsQuery
		expected []int
	}{
		{"No filters", "", models.MetricsQuery{}, []int{2, 3, 1}},
		{"Any role for one user", "", models.MetricsQuery{Users: []string{"bob"}}, []int{2, 1}},
		{"Reviewer role", RoleReviewers, models.MetricsQuery{Users: []string{"carol"}}, []int{1}},
		{"Self review does not count", RoleReviewers, models.MetricsQuery{Users: []string{"alice"}}, []int{2}},
		{"Approver role", RoleApprovers, models.MetricsQuery{Users: []string{"alice"}}, []int{2}},
		{"Lgtm role without users", RoleLgtm, models.MetricsQuery{}, []int{1}},
		{"Creator role", RoleCreators, models.MetricsQuery{Users: []string{"alice"}}, []int{3, 1}},
		{"Excluded owner", "", models.MetricsQuery{ExcludeUsers: []string{"alice"}}, []int{2}},
		{"Excluded user removed from role", RoleApprovers, models.MetricsQuery{ExcludeUsers: []string{"bob"}}, []int{2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query
			q.Page, q.PageSize = 1, 10
			page, err := svc.GetUserPRs(ctx, q, tc.role)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, prNumbers(page))
		})
	}

	t.Run("Rows carry the latest pull request state", func(t *testing.T) {
		page, err := svc.GetUserPRs(ctx, models.MetricsQuery{Page: 1, PageSize: 10, Users: []string{"carol"}}, RoleReviewers)
		require.NoError(t, err)
		require.Len(t, page.Data, 1)

		pr := page.Data[0]
		assert.Equal(t, "Retry uploads", pr.Title)
		assert.Equal(t, "alice", pr.Owner)
		assert.Equal(t, "acme/api", pr.Repository)
		assert.Equal(t, "closed", pr.State)
		assert.True(t, pr.Merged)
		assert.Equal(t, 4, pr.CommitsCount)
		assert.True(t, pr.CreatedAt.Equal(t0))
	})

	t.Run("Pagination", func(t *testing.T) {
		page, err := svc.GetUserPRs(ctx, models.MetricsQuery{Page: 1, PageSize: 1}, "")
		require.NoError(t, err)
		assert.Equal(t, []int{2}, prNumbers(page))
		assert.Equal(t, 3, page.Pagination.Total)
		assert.Equal(t, 3, page.Pagination.TotalPages)
		assert.True(t, page.Pagination.HasNext)
	})

	t.Run("Invalid role", func(t *testing.T) {
		_, err := svc.GetUserPRs(ctx, models.MetricsQuery{Page: 1, PageSize: 10}, "pr_mergers")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}
