// Package api holds the wire types of the trolley sync server's HTTP
// and websocket API, shared by the server and the remote backend.
package api

import (
	"time"

	"trolley/internal/backend"
	"trolley/internal/model"
)

// Error is the error envelope. Code is a stable machine-readable slug;
// Message is for humans.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable error codes mapped onto backend sentinel errors by clients.
const (
	CodeNotAuthenticated   = "not_authenticated"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeEmailTaken         = "email_taken"
	CodeNotAuthorized      = "not_authorized"
	CodeAccountNotFound    = "account_not_found"
	CodeNotFound           = "not_found"
	CodeInvalidRequest     = "invalid_request"
	CodeInternal           = "internal"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session carries a bearer token and the account it belongs to.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	Account   model.Account `json:"account"`
}

// SignupResponse has a nil Session when the account requires email
// confirmation before sign-in.
type SignupResponse struct {
	Session *Session `json:"session,omitempty"`
}

type ListsResponse struct {
	Data []model.List `json:"data"`
}

type ListResponse struct {
	Data model.List `json:"data"`
}

type ItemsResponse struct {
	Data []model.Item `json:"data"`
}

type ItemResponse struct {
	Data model.Item `json:"data"`
}

type CountsResponse struct {
	Data model.ListCounts `json:"data"`
}

type PatchRequest struct {
	Fields map[string]any `json:"fields"`
}

// PositionsRequest batches position assignments for one table. The whole
// affected partition arrives as one batch.
type PositionsRequest struct {
	Table  string                  `json:"table"`
	Writes []backend.PositionWrite `json:"writes"`
}

type CreateItemRequest struct {
	Text string `json:"text"`
}

type DeleteItemsRequest struct {
	IDs []string `json:"ids"`
}

type CreateListRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type ShareListRequest struct {
	ListID string `json:"listId"`
	Email  string `json:"email"`
}

type UploadResult struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
}

type UploadResponse struct {
	Data UploadResult `json:"data"`
}

// ChangeEvent is the websocket change frame. It carries no payload
// beyond its scope: receiving one means "refetch".
type ChangeEvent struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	ListID string `json:"listId,omitempty"`
}

// EventTypeChange is the only server-to-client frame type.
const EventTypeChange = "change"
