// Package backend defines the contract between the client core and a
// backing service. Two implementations exist: backend/local (single-user
// sqlite store) and backend/remote (client for the trolley sync server).
// The engine and the surfaces on top of it only ever see this package.
package backend

import (
	"context"
	"io"

	"trolley/internal/model"
)

// Table identifies a synced collection for position writes and change
// subscription scopes.
type Table string

const (
	TableLists       Table = "lists"
	TableItems       Table = "items"
	TableMemberships Table = "memberships"
)

// MediaBucket is the storage bucket holding list icon and background
// uploads.
const MediaBucket = "media"

// Field keys accepted in UpdateList / UpdateItem patches. Values map to
// the JSON field of the same name; a nil value clears a nullable field.
const (
	FieldName            = "name"
	FieldIcon            = "icon"
	FieldIconImage       = "iconImageUrl"
	FieldBackgroundImage = "backgroundImageUrl"
	FieldText            = "text"
	FieldURL             = "url"
	FieldChecked         = "checked"
)

// PositionWrite assigns one entity its new manual sort position. A
// reposition persists the whole affected partition as one batch of these,
// keyed on ID.
type PositionWrite struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// Scope selects which change events a subscription receives. ListID
// narrows TableItems events to one list; empty matches every row the
// session can see.
type Scope struct {
	Table  Table
	ListID string
}

// Subscription is a live change-feed registration. Unsubscribe is
// idempotent.
type Subscription interface {
	Unsubscribe()
}

// Auth owns the session lifecycle.
type Auth interface {
	// Session returns the persisted session, or nil when signed out.
	Session(ctx context.Context) (*model.Session, error)

	// OnSessionChange registers a callback invoked with the new session
	// (nil on sign-out) whenever the auth state changes. The returned
	// cancel deregisters it.
	OnSessionChange(fn func(*model.Session)) (cancel func())

	SignIn(ctx context.Context, email, password string) (*model.Session, error)

	// SignUp creates an account. A nil session with a nil error means the
	// account was created but requires confirmation before sign-in.
	SignUp(ctx context.Context, email, password string) (*model.Session, error)

	SignOut(ctx context.Context) error
}

// Store is the data plane. Every call is scoped to the signed-in account:
// lists the account is not a member of do not exist as far as Store is
// concerned.
type Store interface {
	// Lists returns the session account's lists ordered by
	// (position asc, createdAt desc, id).
	Lists(ctx context.Context) ([]model.List, error)

	// CountItems returns the item totals for one list.
	CountItems(ctx context.Context, listID string) (model.ListCounts, error)

	// ListItems returns a list's items ordered by
	// (checked asc, position asc, createdAt desc, id).
	ListItems(ctx context.Context, listID string) ([]model.Item, error)

	CreateItem(ctx context.Context, listID, text string) (*model.Item, error)

	// UpdateList applies a field patch to one list and returns the
	// updated row.
	UpdateList(ctx context.Context, id string, fields map[string]any) (*model.List, error)

	// UpdateItem applies a field patch to one item and returns the
	// updated row.
	UpdateItem(ctx context.Context, id string, fields map[string]any) (*model.Item, error)

	// UpsertPositions writes a batch of position assignments in one
	// operation, keyed on id. Rows not named keep their positions.
	UpsertPositions(ctx context.Context, table Table, writes []PositionWrite) error

	// DeleteList removes a list with its items and memberships.
	DeleteList(ctx context.Context, id string) error

	DeleteItems(ctx context.Context, ids ...string) error
}

// Procedures are the two server-side compound operations.
type Procedures interface {
	// CreateList atomically creates a list and adds the caller as its
	// first member.
	CreateList(ctx context.Context, name, icon string) (*model.List, error)

	// ShareList adds the account registered under email to the list's
	// members. Adding an existing member succeeds without effect. Fails
	// with ErrAccountNotFound when no such account exists and
	// ErrNotAuthorized when the caller is not a member.
	ShareList(ctx context.Context, listID, email string) error
}

// Files is the object storage surface for list media.
type Files interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader) error

	// PublicURL derives the public URL of an uploaded object. It does not
	// touch the network and does not check existence.
	PublicURL(bucket, path string) string
}

// Realtime delivers change pings. Events carry no payload; receiving one
// means "something in scope changed, refetch".
type Realtime interface {
	Subscribe(scope Scope, fn func()) (Subscription, error)
}

// Backend is the full backing-service contract.
type Backend interface {
	Auth
	Store
	Procedures
	Files
	Realtime

	// Close releases connections and stops delivery of change events.
	Close() error
}
