package server

import (
	"time"

	"trolley/internal/model"
)

// Account is the stored account row. PasswordHash and Confirmed never
// leave the server; wireAccount strips them.
type Account struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	Confirmed    bool
	CreatedAt    time.Time
}

func (Account) TableName() string { return "accounts" }

type List struct {
	ID                 string `gorm:"primaryKey"`
	Name               string
	Icon               string
	IconImageURL       *string
	BackgroundImageURL *string
	Position           int
	CreatedBy          string
	CreatedAt          time.Time
}

func (List) TableName() string { return "lists" }

type Membership struct {
	ListID    string `gorm:"primaryKey"`
	AccountID string `gorm:"primaryKey;index"`
	CreatedAt time.Time
}

func (Membership) TableName() string { return "memberships" }

type Item struct {
	ID        string `gorm:"primaryKey"`
	ListID    string `gorm:"index"`
	Text      string
	URL       string
	Checked   bool
	Position  int
	CreatedBy *string
	CreatedAt time.Time
}

func (Item) TableName() string { return "items" }

func wireAccount(a Account) model.Account {
	return model.Account{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt}
}

func wireList(l List) model.List {
	return model.List{
		ID:                 l.ID,
		Name:               l.Name,
		Icon:               l.Icon,
		IconImageURL:       l.IconImageURL,
		BackgroundImageURL: l.BackgroundImageURL,
		Position:           l.Position,
		CreatedBy:          l.CreatedBy,
		CreatedAt:          l.CreatedAt,
	}
}

func wireItem(it Item) model.Item {
	return model.Item{
		ID:        it.ID,
		ListID:    it.ListID,
		Text:      it.Text,
		URL:       it.URL,
		Checked:   it.Checked,
		Position:  it.Position,
		CreatedBy: it.CreatedBy,
		CreatedAt: it.CreatedAt,
	}
}

func wireLists(rows []List) []model.List {
	out := make([]model.List, 0, len(rows))
	for _, l := range rows {
		out = append(out, wireList(l))
	}
	return out
}

func wireItems(rows []Item) []model.Item {
	out := make([]model.Item, 0, len(rows))
	for _, it := range rows {
		out = append(out, wireItem(it))
	}
	return out
}
