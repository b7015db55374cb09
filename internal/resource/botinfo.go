package resource

import (
	"context"
	"fmt"
	"sort"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/botinfo"
	"wa-dashboard/internal/repo"
)

// BotInfo fans the bot-info workflow out to the four underlying resources.
type BotInfo struct {
	Promos   *Service[repo.PromoCode]
	Links    *Service[repo.UsefulLink]
	Examples *Service[repo.ConversationExample]
	Rules    *Service[repo.BotRule]
}

// List merges the selected variants into one list, newest first. An empty
// tab selects every variant.
func (b *BotInfo) List(ctx context.Context, ownerID string, q Query) ([]botinfo.Item, error) {
	kinds := botinfo.Kinds
	if q.Tab != "" {
		k, err := botinfo.ParseKind(q.Tab)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		kinds = []botinfo.Kind{k}
	}

	var items []botinfo.Item
	for _, k := range kinds {
		part, err := b.listKind(ctx, ownerID, k)
		if err != nil {
			return nil, err
		}
		for _, it := range part {
			if it.Matches(q.Search) {
				items = append(items, it)
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if items == nil {
		items = []botinfo.Item{}
	}
	return items, nil
}

func (b *BotInfo) listKind(ctx context.Context, ownerID string, k botinfo.Kind) ([]botinfo.Item, error) {
	switch k {
	case botinfo.KindPromo:
		rows, err := b.Promos.List(ctx, ownerID)
		return mapItems(rows, botinfo.FromPromo), err
	case botinfo.KindLink:
		rows, err := b.Links.List(ctx, ownerID)
		return mapItems(rows, botinfo.FromLink), err
	case botinfo.KindExample:
		rows, err := b.Examples.List(ctx, ownerID)
		return mapItems(rows, botinfo.FromExample), err
	case botinfo.KindRule:
		rows, err := b.Rules.List(ctx, ownerID)
		return mapItems(rows, botinfo.FromRule), err
	default:
		return nil, fmt.Errorf("bot info type %q: %w", k, apperrors.ErrValidation)
	}
}

// Upsert decodes the form of kind k with decode and saves it. existingID
// selects update over insert as in Service.Upsert.
func (b *BotInfo) Upsert(ctx context.Context, ownerID string, k botinfo.Kind, decode func(form any) error, existingID *int64) (*botinfo.Item, error) {
	var item botinfo.Item
	switch k {
	case botinfo.KindPromo:
		var f PromoCodeForm
		if err := decode(&f); err != nil {
			return nil, err
		}
		row, err := b.Promos.Upsert(ctx, ownerID, &f, existingID)
		if err != nil {
			return nil, err
		}
		item = botinfo.ToItem(botinfo.PromoCode{PromoCode: *row})
	case botinfo.KindLink:
		var f UsefulLinkForm
		if err := decode(&f); err != nil {
			return nil, err
		}
		row, err := b.Links.Upsert(ctx, ownerID, &f, existingID)
		if err != nil {
			return nil, err
		}
		item = botinfo.ToItem(botinfo.UsefulLink{UsefulLink: *row})
	case botinfo.KindExample:
		var f ConversationExampleForm
		if err := decode(&f); err != nil {
			return nil, err
		}
		row, err := b.Examples.Upsert(ctx, ownerID, &f, existingID)
		if err != nil {
			return nil, err
		}
		item = botinfo.ToItem(botinfo.ConversationExample{ConversationExample: *row})
	case botinfo.KindRule:
		var f RuleForm
		if err := decode(&f); err != nil {
			return nil, err
		}
		row, err := b.Rules.Upsert(ctx, ownerID, &f, existingID)
		if err != nil {
			return nil, err
		}
		item = botinfo.ToItem(botinfo.Rule{BotRule: *row})
	default:
		return nil, fmt.Errorf("bot info type %q: %w", k, apperrors.ErrValidation)
	}
	return &item, nil
}

// Remove deletes one bot-info row of kind k.
func (b *BotInfo) Remove(ctx context.Context, ownerID string, k botinfo.Kind, id int64) error {
	switch k {
	case botinfo.KindPromo:
		return b.Promos.Remove(ctx, ownerID, id)
	case botinfo.KindLink:
		return b.Links.Remove(ctx, ownerID, id)
	case botinfo.KindExample:
		return b.Examples.Remove(ctx, ownerID, id)
	case botinfo.KindRule:
		return b.Rules.Remove(ctx, ownerID, id)
	default:
		return fmt.Errorf("bot info type %q: %w", k, apperrors.ErrValidation)
	}
}

func mapItems[T any](rows []T, fn func(T) botinfo.Item) []botinfo.Item {
	items := make([]botinfo.Item, len(rows))
	for i, r := range rows {
		items[i] = fn(r)
	}
	return items
}
