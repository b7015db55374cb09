package resource

import (
	"bytes"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"wa-dashboard/internal/repo"
)

var markdown = goldmark.New()

// renderMarkdown renders operator-written text. Raw HTML is not passed through.
func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// CouponItem is the list display shape of a coupon.
type CouponItem struct {
	repo.Coupon
	ExpiryDay string `json:"expiry_day"`
	Expired   bool   `json:"expired"`
}

// NewCouponItem marks the coupon expired when its expiry day is before today.
func NewCouponItem(c repo.Coupon, now time.Time) CouponItem {
	return CouponItem{
		Coupon:    c,
		ExpiryDay: c.ExpiryDay.Format(DayLayout),
		Expired:   couponExpired(c, now),
	}
}

func couponExpired(c repo.Coupon, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(c.ExpiryDay.Year(), c.ExpiryDay.Month(), c.ExpiryDay.Day(), 0, 0, 0, 0, time.UTC)
	return day.Before(today)
}

// ProcedureItem is the list display shape of a procedure.
type ProcedureItem struct {
	repo.Procedure
	StepList        []string `json:"step_list"`
	DescriptionHTML string   `json:"description_html"`
}

func NewProcedureItem(p repo.Procedure) ProcedureItem {
	return ProcedureItem{
		Procedure:       p,
		StepList:        SplitLines(p.Steps),
		DescriptionHTML: renderMarkdown(p.Description),
	}
}

// ProblemItem is the list display shape of a problem and its solution.
type ProblemItem struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Problem      string    `json:"problem"`
	Solution     string    `json:"solution"`
	SolutionHTML string    `json:"solution_html"`
	Tags         []string  `json:"tags"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewProblemItem synthesizes the title from the first line of the problem.
func NewProblemItem(p repo.Problem) ProblemItem {
	title, _, _ := strings.Cut(strings.TrimSpace(p.Problem), "\n")
	return ProblemItem{
		ID:           p.ID,
		Title:        strings.TrimSpace(title),
		Problem:      p.Problem,
		Solution:     p.Solution,
		SolutionHTML: renderMarkdown(p.Solution),
		Tags:         SplitTags(p.Tags),
		Category:     p.Category,
		CreatedAt:    p.CreatedAt,
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

// MatchCoupon supports the "active" and "expired" tabs.
func MatchCoupon(now func() time.Time) Matcher[repo.Coupon] {
	return func(c repo.Coupon, q Query) bool {
		switch q.Tab {
		case "active":
			if couponExpired(c, now()) {
				return false
			}
		case "expired":
			if !couponExpired(c, now()) {
				return false
			}
		}
		return q.Search == "" ||
			containsFold(c.Title, q.Search) ||
			containsFold(c.Code, q.Search) ||
			containsFold(c.VisualDescription, q.Search)
	}
}

// MatchProcedure searches title, description and steps.
func MatchProcedure(p repo.Procedure, q Query) bool {
	return q.Search == "" ||
		containsFold(p.Title, q.Search) ||
		containsFold(p.Description, q.Search) ||
		containsFold(p.Steps, q.Search)
}

// MatchProblem uses the tab as category filter.
func MatchProblem(p repo.Problem, q Query) bool {
	if q.Tab != "" && !strings.EqualFold(p.Category, q.Tab) {
		return false
	}
	return q.Search == "" ||
		containsFold(p.Problem, q.Search) ||
		containsFold(p.Solution, q.Search) ||
		containsFold(p.Tags, q.Search)
}
