package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alimgiray/hookmetrics/internal/models"
)

// PR roles accepted by GetUserPRs
const (
	RoleCreators  = "pr_creators"
	RoleReviewers = "pr_reviewers"
	RoleApprovers = "pr_approvers"
	RoleLgtm      = "pr_lgtm"
)

var ErrInvalidRole = errors.New("role must be one of pr_creators, pr_reviewers, pr_approvers, pr_lgtm")

type ContributorService struct {
	events EventSource
}

func NewContributorService(events EventSource) *ContributorService {
	return &ContributorService{events: events}
}

func (s *ContributorService) loadActivity(ctx context.Context, q models.MetricsQuery) ([]*prActivity, error) {
	filter := windowFilter(q)
	filter.EventTypes = prActivityEventTypes

	rows, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pr activity: %w", err)
	}
	return sortedActivities(buildPRActivity(rows)), nil
}

// GetContributors ranks creators, reviewers, approvers and lgtm givers
func (s *ContributorService) GetContributors(ctx context.Context, q models.MetricsQuery) (*models.Contributors, error) {
	activities, err := s.loadActivity(ctx, q)
	if err != nil {
		return nil, err
	}
	users := newUserFilter(q.Users, q.ExcludeUsers)

	creators := map[string]*models.PRCreatorStats{}
	commits := map[string]int{}
	reviewers := map[string]*models.PRReviewerStats{}
	approvers := map[string]*models.PRApproverStats{}
	lgtm := map[string]*models.PRLgtmStats{}

	for _, act := range activities {
		if act.Latest != nil && act.Author != "" && users.allows(act.Author) {
			c, ok := creators[act.Author]
			if !ok {
				c = &models.PRCreatorStats{User: act.Author}
				creators[act.Author] = c
			}
			c.TotalPRs++
			switch {
			case act.Latest.GetMerged():
				c.MergedPRs++
			case act.Latest.GetState() == "closed":
				c.ClosedPRs++
			}
			commits[act.Author] += act.Latest.GetCommits()
		}

		for _, review := range act.Reviews {
			if review.Reviewer == "" || review.Reviewer == act.Author || !users.allows(review.Reviewer) {
				continue
			}
			r, ok := reviewers[review.Reviewer]
			if !ok {
				r = &models.PRReviewerStats{User: review.Reviewer}
				reviewers[review.Reviewer] = r
			}
			r.TotalReviews++
		}
		for _, reviewer := range act.reviewers() {
			if r, ok := reviewers[reviewer]; ok {
				r.PRsReviewed++
			}
		}

		countLabels(act, approvedLabelPrefix, users, func(user string, firstOnPR bool) {
			a, ok := approvers[user]
			if !ok {
				a = &models.PRApproverStats{User: user}
				approvers[user] = a
			}
			a.TotalApprovals++
			if firstOnPR {
				a.PRsApproved++
			}
		})
		countLabels(act, lgtmLabelPrefix, users, func(user string, firstOnPR bool) {
			l, ok := lgtm[user]
			if !ok {
				l = &models.PRLgtmStats{User: user}
				lgtm[user] = l
			}
			l.TotalLgtm++
			if firstOnPR {
				l.PRsLgtm++
			}
		})
	}

	for user, c := range creators {
		if c.TotalPRs > 0 {
			c.AvgCommits = round1(float64(commits[user]) / float64(c.TotalPRs))
		}
	}

	return &models.Contributors{
		PRCreators: models.Paginate(rankBy(creators, func(c *models.PRCreatorStats) (string, int) {
			return c.User, c.TotalPRs
		}), q.Page, q.PageSize),
		PRReviewers: models.Paginate(rankBy(reviewers, func(r *models.PRReviewerStats) (string, int) {
			return r.User, r.TotalReviews
		}), q.Page, q.PageSize),
		PRApprovers: models.Paginate(rankBy(approvers, func(a *models.PRApproverStats) (string, int) {
			return a.User, a.TotalApprovals
		}), q.Page, q.PageSize),
		PRLgtm: models.Paginate(rankBy(lgtm, func(l *models.PRLgtmStats) (string, int) {
			return l.User, l.TotalLgtm
		}), q.Page, q.PageSize),
	}, nil
}

// countLabels calls fn for every "<prefix><user>" label on the PR
func countLabels(act *prActivity, prefix string, users userFilter, fn func(user string, firstOnPR bool)) {
	seen := map[string]bool{}
	for _, label := range act.Labels {
		user, ok := strings.CutPrefix(label.Name, prefix)
		if !ok || user == "" || !users.allows(user) {
			continue
		}
		fn(user, !seen[user])
		seen[user] = true
	}
}

// rankBy orders stats by count descending, then user ascending
func rankBy[T any](stats map[string]*T, key func(*T) (string, int)) []T {
	out := make([]T, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		ui, ci := key(&out[i])
		uj, cj := key(&out[j])
		if ci != cj {
			return ci > cj
		}
		return ui < uj
	})
	return out
}

// GetUserPRs lists PRs in which the requested users played the given role.
// With no role a user matches as creator, reviewer, approver or lgtm giver.
func (s *ContributorService) GetUserPRs(ctx context.Context, q models.MetricsQuery, role string) (*models.Page[models.PullRequest], error) {
	switch role {
	case "", RoleCreators, RoleReviewers, RoleApprovers, RoleLgtm:
	default:
		return nil, ErrInvalidRole
	}

	activities, err := s.loadActivity(ctx, q)
	if err != nil {
		return nil, err
	}

	include := newUserFilter(q.Users, nil)
	exclude := map[string]bool{}
	for _, u := range q.ExcludeUsers {
		exclude[u] = true
	}

	prs := make([]models.PullRequest, 0)
	for _, act := range activities {
		if act.Latest == nil {
			continue
		}

		people := make([]string, 0)
		for _, p := range rolePeople(act, role) {
			if !exclude[p] {
				people = append(people, p)
			}
		}

		var match bool
		switch {
		case len(q.Users) > 0:
			for _, p := range people {
				if include.include[p] {
					match = true
					break
				}
			}
		case role != "":
			match = len(people) > 0
		default:
			match = !exclude[act.Author]
		}
		if !match {
			continue
		}

		pr := act.Latest
		prs = append(prs, models.PullRequest{
			Number:       act.Key.Number,
			Title:        pr.GetTitle(),
			Owner:        act.Author,
			Repository:   act.Key.Repository,
			State:        pr.GetState(),
			Merged:       pr.GetMerged(),
			URL:          pr.GetHTMLURL(),
			CreatedAt:    pr.GetCreatedAt().Time.UTC(),
			UpdatedAt:    pr.GetUpdatedAt().Time.UTC(),
			CommitsCount: pr.GetCommits(),
			HeadSHA:      pr.GetHead().GetSHA(),
		})
	}

	sort.SliceStable(prs, func(i, j int) bool { return prs[i].UpdatedAt.After(prs[j].UpdatedAt) })
	page := models.Paginate(prs, q.Page, q.PageSize)
	return &page, nil
}

func rolePeople(act *prActivity, role string) []string {
	switch role {
	case RoleCreators:
		if act.Author == "" {
			return nil
		}
		return []string{act.Author}
	case RoleReviewers:
		return act.reviewers()
	case RoleApprovers:
		return act.labelUsers(approvedLabelPrefix)
	case RoleLgtm:
		return act.labelUsers(lgtmLabelPrefix)
	}

	var all []string
	for _, r := range []string{RoleCreators, RoleReviewers, RoleApprovers, RoleLgtm} {
		all = append(all, rolePeople(act, r)...)
	}
	return all
}
