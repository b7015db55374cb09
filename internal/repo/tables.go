package repo

// Coupons maps the coupons table. Title is stored in "comment" and ownership
// in "user_id".
func (r *Repository) Coupons() *Table[Coupon] {
	return &Table[Coupon]{
		repo:     r,
		resource: "coupons",
		name:     "coupons",
		owner:    "user_id",
		columns:  []string{"comment", "visual_description", "promo_code", "expiry_day", "image_url"},
		values: func(c *Coupon) []any {
			return []any{c.Title, c.VisualDescription, c.Code, c.ExpiryDay.UTC(), c.ImageURL}
		},
		scan: func(s scanner) (Coupon, error) {
			var c Coupon
			err := s.Scan(&c.ID, &c.OwnerID, &c.CreatedAt, &c.Title, &c.VisualDescription, &c.Code, &c.ExpiryDay, &c.ImageURL)
			return c, err
		},
	}
}

// Procedures maps the procedures table.
func (r *Repository) Procedures() *Table[Procedure] {
	return &Table[Procedure]{
		repo:     r,
		resource: "procedures",
		name:     "procedures",
		owner:    "profile_id",
		columns:  []string{"title", "description", "steps"},
		values: func(p *Procedure) []any {
			return []any{p.Title, p.Description, p.Steps}
		},
		scan: func(s scanner) (Procedure, error) {
			var p Procedure
			err := s.Scan(&p.ID, &p.OwnerID, &p.CreatedAt, &p.Title, &p.Description, &p.Steps)
			return p, err
		},
	}
}

// Problems maps the problems_solutions table.
func (r *Repository) Problems() *Table[Problem] {
	return &Table[Problem]{
		repo:     r,
		resource: "problems",
		name:     "problems_solutions",
		owner:    "profile_id",
		columns:  []string{"problem", "solution", "tags", "category"},
		values: func(p *Problem) []any {
			return []any{p.Problem, p.Solution, p.Tags, p.Category}
		},
		scan: func(s scanner) (Problem, error) {
			var p Problem
			err := s.Scan(&p.ID, &p.OwnerID, &p.CreatedAt, &p.Problem, &p.Solution, &p.Tags, &p.Category)
			return p, err
		},
	}
}

// PromoCodes maps the promo_codes table.
func (r *Repository) PromoCodes() *Table[PromoCode] {
	return &Table[PromoCode]{
		repo:     r,
		resource: "promo_codes",
		name:     "promo_codes",
		owner:    "profile_id",
		columns:  []string{"code", "details"},
		values: func(p *PromoCode) []any {
			return []any{p.Code, p.Details}
		},
		scan: func(s scanner) (PromoCode, error) {
			var p PromoCode
			err := s.Scan(&p.ID, &p.OwnerID, &p.CreatedAt, &p.Code, &p.Details)
			return p, err
		},
	}
}

// UsefulLinks maps the useful_links table. Label is stored in "link_name".
func (r *Repository) UsefulLinks() *Table[UsefulLink] {
	return &Table[UsefulLink]{
		repo:     r,
		resource: "useful_links",
		name:     "useful_links",
		owner:    "profile_id",
		columns:  []string{"link_name", "url"},
		values: func(l *UsefulLink) []any {
			return []any{l.Label, l.URL}
		},
		scan: func(s scanner) (UsefulLink, error) {
			var l UsefulLink
			err := s.Scan(&l.ID, &l.OwnerID, &l.CreatedAt, &l.Label, &l.URL)
			return l, err
		},
	}
}

// ConversationExamples maps the conversation_examples table.
func (r *Repository) ConversationExamples() *Table[ConversationExample] {
	return &Table[ConversationExample]{
		repo:     r,
		resource: "conversation_examples",
		name:     "conversation_examples",
		owner:    "profile_id",
		columns:  []string{"user_message", "bot_response"},
		values: func(e *ConversationExample) []any {
			return []any{e.CustomerMessage, e.BotReply}
		},
		scan: func(s scanner) (ConversationExample, error) {
			var e ConversationExample
			err := s.Scan(&e.ID, &e.OwnerID, &e.CreatedAt, &e.CustomerMessage, &e.BotReply)
			return e, err
		},
	}
}

// BotRules maps the bot_rules table.
func (r *Repository) BotRules() *Table[BotRule] {
	return &Table[BotRule]{
		repo:     r,
		resource: "bot_rules",
		name:     "bot_rules",
		owner:    "profile_id",
		columns:  []string{"rule_text"},
		values: func(b *BotRule) []any {
			return []any{b.Rule}
		},
		scan: func(s scanner) (BotRule, error) {
			var b BotRule
			err := s.Scan(&b.ID, &b.OwnerID, &b.CreatedAt, &b.Rule)
			return b, err
		},
	}
}

// Licenses maps the licenses table.
func (r *Repository) Licenses() *Table[License] {
	return &Table[License]{
		repo:     r,
		resource: "licenses",
		name:     "licenses",
		owner:    "profile_id",
		columns:  []string{"instance_id", "label", "status", "status_text"},
		values: func(l *License) []any {
			return []any{l.InstanceID, l.Label, l.Status, l.StatusText}
		},
		scan: func(s scanner) (License, error) {
			var l License
			err := s.Scan(&l.ID, &l.OwnerID, &l.CreatedAt, &l.InstanceID, &l.Label, &l.Status, &l.StatusText)
			return l, err
		},
	}
}
