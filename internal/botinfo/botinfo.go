// Package botinfo unifies the four kinds of assistant knowledge (promo codes,
// useful links, conversation examples and rules) behind one display shape.
package botinfo

import (
	"fmt"
	"strings"
	"time"

	"wa-dashboard/internal/repo"
)

// Kind identifies a bot-info variant. The values are used in URLs.
type Kind string

const (
	KindPromo   Kind = "promo"
	KindLink    Kind = "link"
	KindExample Kind = "example"
	KindRule    Kind = "rule"
)

// Kinds lists every variant in display order.
var Kinds = []Kind{KindPromo, KindLink, KindExample, KindRule}

// ParseKind validates a kind taken from user input.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown bot info type %q", s)
}

// Variant is implemented only by the row types of this package.
type Variant interface {
	variant()
}

type (
	PromoCode           struct{ repo.PromoCode }
	UsefulLink          struct{ repo.UsefulLink }
	ConversationExample struct{ repo.ConversationExample }
	Rule                struct{ repo.BotRule }
)

func (PromoCode) variant()           {}
func (UsefulLink) variant()          {}
func (ConversationExample) variant() {}
func (Rule) variant()                {}

// Item is the unified display shape of a bot-info row.
type Item struct {
	Kind      Kind      `json:"type"`
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToItem maps any variant onto Item.
func ToItem(v Variant) Item {
	switch x := v.(type) {
	case PromoCode:
		return FromPromo(x.PromoCode)
	case UsefulLink:
		return FromLink(x.UsefulLink)
	case ConversationExample:
		return FromExample(x.ConversationExample)
	case Rule:
		return FromRule(x.BotRule)
	default:
		panic(fmt.Sprintf("botinfo: unhandled variant %T", v))
	}
}

func FromPromo(p repo.PromoCode) Item {
	return Item{Kind: KindPromo, ID: p.ID, Title: p.Code, Content: p.Details, CreatedAt: p.CreatedAt}
}

func FromLink(l repo.UsefulLink) Item {
	return Item{Kind: KindLink, ID: l.ID, Title: l.Label, Content: l.URL, CreatedAt: l.CreatedAt}
}

func FromExample(e repo.ConversationExample) Item {
	return Item{Kind: KindExample, ID: e.ID, Title: e.CustomerMessage, Content: e.BotReply, CreatedAt: e.CreatedAt}
}

// FromRule uses the first line of the rule as title.
func FromRule(r repo.BotRule) Item {
	title, _, _ := strings.Cut(strings.TrimSpace(r.Rule), "\n")
	return Item{Kind: KindRule, ID: r.ID, Title: title, Content: r.Rule, CreatedAt: r.CreatedAt}
}

// Matches reports whether the item contains query, case-insensitively.
func (i Item) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(i.Title), query) ||
		strings.Contains(strings.ToLower(i.Content), query)
}
