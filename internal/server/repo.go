package server

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"trolley/internal/backend"
)

// Repo wraps all database access. Queries never filter by account on
// their own; the handlers decide membership first.
type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&Account{}, &List{}, &Membership{}, &Item{})
}

func (r *Repo) CreateAccount(ctx context.Context, a *Account) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	if err := r.db.WithContext(ctx).First(&a, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) AccountByID(ctx context.Context, id string) (*Account, error) {
	var a Account
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListsFor returns the lists accountID is a member of, in render order.
func (r *Repo) ListsFor(ctx context.Context, accountID string) ([]List, error) {
	var rows []List
	err := r.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.list_id = lists.id").
		Where("memberships.account_id = ?", accountID).
		Order("lists.position ASC, lists.created_at DESC, lists.id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repo) ListByID(ctx context.Context, id string) (*List, error) {
	var l List
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) IsMember(ctx context.Context, listID, accountID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Membership{}).
		Where("list_id = ? AND account_id = ?", listID, accountID).
		Count(&n).Error
	return n > 0, err
}

func (r *Repo) MemberIDs(ctx context.Context, listID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Membership{}).
		Where("list_id = ?", listID).
		Pluck("account_id", &ids).Error
	return ids, err
}

func (r *Repo) UpdateListFields(ctx context.Context, id string, columns map[string]any) (*List, error) {
	if err := r.db.WithContext(ctx).Model(&List{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return nil, err
	}
	return r.ListByID(ctx, id)
}

// CreateListWithOwner inserts the list and its creator membership in one
// transaction. No list ever exists without a member.
func (r *Repo) CreateListWithOwner(ctx context.Context, l *List, accountID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(l).Error; err != nil {
			return err
		}
		return tx.Create(&Membership{ListID: l.ID, AccountID: accountID, CreatedAt: l.CreatedAt}).Error
	})
}

// AddMember is idempotent; it reports whether a row was inserted.
func (r *Repo) AddMember(ctx context.Context, listID, accountID string, at time.Time) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Membership{}).
			Where("list_id = ? AND account_id = ?", listID, accountID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		added = true
		return tx.Create(&Membership{ListID: listID, AccountID: accountID, CreatedAt: at}).Error
	})
	return added, err
}

// DeleteList removes the list with its items and memberships.
func (r *Repo) DeleteList(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", id).Delete(&Item{}).Error; err != nil {
			return err
		}
		if err := tx.Where("list_id = ?", id).Delete(&Membership{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&List{}).Error
	})
}

// ItemsOf returns a list's items in render order.
func (r *Repo) ItemsOf(ctx context.Context, listID string) ([]Item, error) {
	var rows []Item
	err := r.db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("checked ASC, position ASC, created_at DESC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repo) CountItems(ctx context.Context, listID string) (total, unchecked int64, err error) {
	if err = r.db.WithContext(ctx).Model(&Item{}).
		Where("list_id = ?", listID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&Item{}).
		Where("list_id = ? AND checked = ?", listID, false).
		Count(&unchecked).Error
	return total, unchecked, err
}

func (r *Repo) ItemByID(ctx context.Context, id string) (*Item, error) {
	var it Item
	if err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repo) CreateItem(ctx context.Context, it *Item) error {
	return r.db.WithContext(ctx).Create(it).Error
}

func (r *Repo) UpdateItemFields(ctx context.Context, id string, columns map[string]any) (*Item, error) {
	if err := r.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return nil, err
	}
	return r.ItemByID(ctx, id)
}

// ListIDsOfItems resolves each named item to its list. Ids without a row
// are absent from the result.
func (r *Repo) ListIDsOfItems(ctx context.Context, ids []string) (map[string]string, error) {
	var rows []Item
	if err := r.db.WithContext(ctx).
		Select("id", "list_id").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, it := range rows {
		out[it.ID] = it.ListID
	}
	return out, nil
}

func (r *Repo) DeleteItems(ctx context.Context, ids []string) error {
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Item{}).Error
}

// UpsertPositions applies one batch of position writes in a single
// transaction. Rows not named keep their positions.
func (r *Repo) UpsertPositions(ctx context.Context, table backend.Table, writes []backend.PositionWrite) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			var err error
			switch table {
			case backend.TableLists:
				err = tx.Model(&List{}).Where("id = ?", w.ID).Update("position", w.Position).Error
			case backend.TableItems:
				err = tx.Model(&Item{}).Where("id = ?", w.ID).Update("position", w.Position).Error
			default:
				err = fmt.Errorf("unsupported table %q", table)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
