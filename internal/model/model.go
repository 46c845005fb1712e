package model

import "time"

type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the authenticated state handed to the client by the backing
// service. Account is always populated while the session is live.
type Session struct {
	Account     Account    `json:"account"`
	AccessToken string     `json:"accessToken,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Icon is a short glyph (usually an emoji) shown next to the name.
	// IconImageURL, when set, replaces it with an uploaded image.
	Icon               string  `json:"icon,omitempty"`
	IconImageURL       *string `json:"iconImageUrl,omitempty"`
	BackgroundImageURL *string `json:"backgroundImageUrl,omitempty"`

	// Position orders lists manually; ties fall back to newest-first.
	Position  int       `json:"position"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListCounts carries the per-list aggregates shown on the lists screen.
type ListCounts struct {
	ListID    string `json:"listId"`
	Total     int    `json:"total"`
	Unchecked int    `json:"unchecked"`
}

type Membership struct {
	ListID    string    `json:"listId"`
	AccountID string    `json:"accountId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Item struct {
	ID     string `json:"id"`
	ListID string `json:"listId"`

	Text    string `json:"text"`
	URL     string `json:"url,omitempty"`
	Checked bool   `json:"checked"`

	// Position orders items manually within their checked-state partition.
	// Values are not unique; ties fall back to newest-first.
	Position int `json:"position"`

	// CreatedBy is nil when the creating account has been deleted.
	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
