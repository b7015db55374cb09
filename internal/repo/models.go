package repo

import "time"

// Coupon is a promotional coupon shown to customers by the assistant.
type Coupon struct {
	ID                int64     `json:"id"`
	OwnerID           string    `json:"owner_id"`
	CreatedAt         time.Time `json:"created_at"`
	Title             string    `json:"title"`
	VisualDescription string    `json:"visual_description"`
	Code              string    `json:"code"`
	ExpiryDay         time.Time `json:"expiry_day"`
	ImageURL          string    `json:"image_url"`
}

// Procedure is a step-by-step guide the assistant can recite.
type Procedure struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Steps       string    `json:"steps"`
}

// Problem pairs a customer problem with its solution.
type Problem struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Problem   string    `json:"problem"`
	Solution  string    `json:"solution"`
	Tags      string    `json:"tags"`
	Category  string    `json:"category"`
}

// PromoCode is a bot-info promotional code.
type PromoCode struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Code      string    `json:"code"`
	Details   string    `json:"details"`
}

// UsefulLink is a bot-info labelled URL.
type UsefulLink struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Label     string    `json:"label"`
	URL       string    `json:"url"`
}

// ConversationExample is a sample exchange used to steer the assistant.
type ConversationExample struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	CreatedAt       time.Time `json:"created_at"`
	CustomerMessage string    `json:"customer_message"`
	BotReply        string    `json:"bot_reply"`
}

// BotRule is a free-text behaviour rule for the assistant.
type BotRule struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Rule      string    `json:"rule"`
}

// License status values persisted in licenses.status.
const (
	LicenseDisconnected = "disconnected"
	LicenseConnecting   = "connecting"
	LicenseConnected    = "connected"
	LicenseRestarting   = "restarting"
)

// License links an operator to a messaging-gateway instance.
type License struct {
	ID         int64     `json:"id"`
	OwnerID    string    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	InstanceID string    `json:"instance_id"`
	Label      string    `json:"label"`
	Status     string    `json:"status"`
	StatusText string    `json:"status_text"`
}

// Profile is the operator profile; its id equals the operator id.
type Profile struct {
	ID                     string    `json:"id"`
	CreatedAt              time.Time `json:"created_at"`
	Name                   string    `json:"name"`
	WhatsAppBotNumber      string    `json:"whatsapp_bot_number"`
	WhatsAppPersonalNumber string    `json:"whatsapp_personal_number"`
	PhotoURL               string    `json:"photo_url"`
	IsSolvent              bool      `json:"is_solvent"`
}

// ProfileUpdate carries the operator-editable profile fields.
type ProfileUpdate struct {
	Name                   string
	WhatsAppBotNumber      string
	WhatsAppPersonalNumber string
}

// Operator is an authenticated dashboard user.
type Operator struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Provider        string    `json:"provider"`
	ProviderSubject string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Payment order status values.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// PaymentOrder records one checkout attempt.
type PaymentOrder struct {
	OrderID   string    `json:"order_id"`
	OwnerID   string    `json:"owner_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

// Theme names of background images.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// BackgroundImage is a decorative image of the light or dark set.
type BackgroundImage struct {
	ID       int64  `json:"id"`
	ImageURL string `json:"image_url"`
	Theme    string `json:"theme"`
}
