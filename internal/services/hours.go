package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// round1 rounds to one decimal place, half away from zero
func round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// averageHours returns the rounded mean, or nil when there is nothing to average
func averageHours(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(1).InexactFloat64()
	return &avg
}

// medianHours returns the rounded median, or nil for an empty set
func medianHours(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	median = round1(median)
	return &median
}

func hoursPtr(from, to *time.Time) *float64 {
	if from == nil || to == nil {
		return nil
	}
	h := round1(hoursBetween(*from, *to))
	return &h
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// userFilter applies the users / exclude_users query parameters
type userFilter struct {
	include map[string]bool
	exclude map[string]bool
}

func newUserFilter(users, excludeUsers []string) userFilter {
	f := userFilter{include: map[string]bool{}, exclude: map[string]bool{}}
	for _, u := range users {
		f.include[u] = true
	}
	for _, u := range excludeUsers {
		f.exclude[u] = true
	}
	return f
}

func (f userFilter) allows(user string) bool {
	if f.exclude[user] {
		return false
	}
	return len(f.include) == 0 || f.include[user]
}
