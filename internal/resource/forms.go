package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/validator"
)

// DayLayout is the wire format of calendar days.
const DayLayout = "2006-01-02"

type CouponForm struct {
	Title             string `json:"title" validate:"required,min=3"`
	VisualDescription string `json:"visual_description" validate:"required,min=10"`
	Code              string `json:"code" validate:"required"`
	ExpiryDay         string `json:"expiry_day" validate:"required,datetime=2006-01-02"`
	ImageURL          string `json:"image_url" validate:"omitempty,url"`
}

func (f *CouponForm) Normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.VisualDescription = strings.TrimSpace(f.VisualDescription)
	f.Code = strings.ToUpper(strings.TrimSpace(f.Code))
	f.ExpiryDay = strings.TrimSpace(f.ExpiryDay)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
}

func (f *CouponForm) Row() (repo.Coupon, error) {
	day, err := time.Parse(DayLayout, f.ExpiryDay)
	if err != nil {
		return repo.Coupon{}, validator.FieldErrors{"expiry_day": fmt.Sprintf("must be a date formatted as %s", DayLayout)}
	}
	return repo.Coupon{
		Title:             f.Title,
		VisualDescription: f.VisualDescription,
		Code:              f.Code,
		ExpiryDay:         day,
		ImageURL:          f.ImageURL,
	}, nil
}

type ProcedureForm struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description" validate:"required,min=10"`
	Steps       string `json:"steps" validate:"required"`
}

func (f *ProcedureForm) Normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Steps = normalizeLines(f.Steps)
}

func (f *ProcedureForm) Row() (repo.Procedure, error) {
	return repo.Procedure{Title: f.Title, Description: f.Description, Steps: f.Steps}, nil
}

type ProblemForm struct {
	Problem  string `json:"problem" validate:"required,min=10"`
	Solution string `json:"solution" validate:"required,min=10"`
	Tags     string `json:"tags"`
	Category string `json:"category" validate:"required"`
}

func (f *ProblemForm) Normalize() {
	f.Problem = strings.TrimSpace(f.Problem)
	f.Solution = strings.TrimSpace(f.Solution)
	f.Tags = strings.Join(SplitTags(f.Tags), ", ")
	f.Category = strings.TrimSpace(f.Category)
}

func (f *ProblemForm) Row() (repo.Problem, error) {
	return repo.Problem{Problem: f.Problem, Solution: f.Solution, Tags: f.Tags, Category: f.Category}, nil
}

type PromoCodeForm struct {
	Code    string `json:"code" validate:"required,min=3"`
	Details string `json:"details" validate:"required,min=10"`
}

func (f *PromoCodeForm) Normalize() {
	f.Code = strings.ToUpper(strings.TrimSpace(f.Code))
	f.Details = strings.TrimSpace(f.Details)
}

func (f *PromoCodeForm) Row() (repo.PromoCode, error) {
	return repo.PromoCode{Code: f.Code, Details: f.Details}, nil
}

type UsefulLinkForm struct {
	Label string `json:"label" validate:"required,min=3"`
	URL   string `json:"url" validate:"required,url"`
}

func (f *UsefulLinkForm) Normalize() {
	f.Label = strings.TrimSpace(f.Label)
	f.URL = strings.TrimSpace(f.URL)
}

func (f *UsefulLinkForm) Row() (repo.UsefulLink, error) {
	return repo.UsefulLink{Label: f.Label, URL: f.URL}, nil
}

type ConversationExampleForm struct {
	CustomerMessage string `json:"customer_message" validate:"required,min=3"`
	BotReply        string `json:"bot_reply" validate:"required,min=10"`
}

func (f *ConversationExampleForm) Normalize() {
	f.CustomerMessage = strings.TrimSpace(f.CustomerMessage)
	f.BotReply = strings.TrimSpace(f.BotReply)
}

func (f *ConversationExampleForm) Row() (repo.ConversationExample, error) {
	return repo.ConversationExample{CustomerMessage: f.CustomerMessage, BotReply: f.BotReply}, nil
}

type RuleForm struct {
	Rule string `json:"rule" validate:"required,min=10"`
}

func (f *RuleForm) Normalize() {
	f.Rule = strings.TrimSpace(f.Rule)
}

func (f *RuleForm) Row() (repo.BotRule, error) {
	return repo.BotRule{Rule: f.Rule}, nil
}

// SplitTags splits a comma-delimited tag list, trimming blanks and dropping
// empty entries.
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// SplitLines splits newline-delimited text into trimmed non-empty lines.
func SplitLines(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func normalizeLines(raw string) string {
	return strings.Join(SplitLines(raw), "\n")
}

// ParseID parses a path id, reporting bad input as a validation error.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, apperrors.ErrValidation)
	}
	return id, nil
}
