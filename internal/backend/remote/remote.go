// Package remote implements backend.Backend as a client for the trolley
// sync server, speaking its HTTP API for data and its websocket feed for
// change notifications. Wire shapes live in internal/api and are shared
// with the server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"trolley/internal/api"
	"trolley/internal/backend"
	"trolley/internal/model"
)

// Config configures a remote backend.
type Config struct {
	// BaseURL is the server root, e.g. https://trolley.example.com.
	BaseURL string

	// Dir is the state directory holding credentials.json. Empty means
	// DefaultDir().
	Dir string

	// Token pins an explicit bearer token. A pinned token bypasses the
	// credentials file and is never written to disk.
	Token string

	// Client overrides the HTTP client used for API calls.
	Client *http.Client
}

// Backend talks to one trolley sync server on behalf of one account.
type Backend struct {
	baseURL string
	dir     string
	http    *http.Client

	mu        sync.Mutex
	token     string
	pinned    bool
	session   *model.Session
	callbacks map[int]func(*model.Session)
	nextCB    int

	feed *feed
}

// Open builds a backend for cfg. It resolves the saved token but does
// not touch the network; a stale token surfaces on the first call.
func Open(cfg Config) (*Backend, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("server url required")
	}
	dir := cfg.Dir
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	b := &Backend{
		baseURL:   base,
		dir:       dir,
		http:      hc,
		callbacks: map[int]func(*model.Session){},
	}
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		b.token = stripBearer(tok)
		b.pinned = true
	} else {
		tok, pinned, err := loadToken(dir)
		if err != nil {
			return nil, err
		}
		b.token = tok
		b.pinned = pinned
	}
	b.feed = newFeed(b)
	return b, nil
}

// Close stops the realtime feed. In-flight HTTP calls are not
// interrupted; cancel their contexts for that.
func (b *Backend) Close() error {
	b.feed.close()
	return nil
}

// doJSON performs one API round-trip. A non-nil in is sent as the JSON
// request body, a non-nil out receives the decoded response body. Error
// envelopes map onto the backend sentinel errors; a rejected token drops
// the stored session as a side effect.
func (b *Backend) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := b.currentToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return b.apiError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError turns a non-2xx response into an error, preferring the
// server's {code,message} envelope over raw status text.
func (b *Backend) apiError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var env api.Error
	if jerr := json.Unmarshal(raw, &env); jerr == nil && env.Code != "" {
		if env.Code == api.CodeNotAuthenticated {
			b.sessionLost()
		}
		if sent := sentinelFor(env.Code); sent != nil {
			return sent
		}
		return fmt.Errorf("server: %s (%s)", env.Message, env.Code)
	}

	if res.StatusCode == http.StatusUnauthorized {
		b.sessionLost()
		return backend.ErrNotAuthenticated
	}
	return fmt.Errorf("server: %s (%d)", strings.TrimSpace(string(raw)), res.StatusCode)
}

// sentinelFor maps a wire error code onto its backend sentinel, nil for
// codes without one.
func sentinelFor(code string) error {
	switch code {
	case api.CodeNotAuthenticated:
		return backend.ErrNotAuthenticated
	case api.CodeInvalidCredentials:
		return backend.ErrInvalidCredentials
	case api.CodeEmailNotConfirmed:
		return backend.ErrEmailNotConfirmed
	case api.CodeEmailTaken:
		return backend.ErrEmailTaken
	case api.CodeNotAuthorized:
		return backend.ErrNotAuthorized
	case api.CodeAccountNotFound:
		return backend.ErrAccountNotFound
	case api.CodeNotFound:
		return backend.ErrNotFound
	}
	return nil
}

func (b *Backend) currentToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// sessionLost drops the stored session after the server rejected its
// token. Surfaces learn about it through OnSessionChange and show the
// sign-in screen again.
func (b *Backend) sessionLost() {
	b.mu.Lock()
	if b.token == "" {
		b.mu.Unlock()
		return
	}
	b.token = ""
	b.session = nil
	pinned := b.pinned
	b.mu.Unlock()

	if !pinned {
		_ = deleteToken(b.dir)
	}
	b.notifySessionChange(nil)
	b.feed.poke()
}

// Session resolves the saved token against the server, or returns nil
// when signed out. The result is cached until the auth state changes.
func (b *Backend) Session(ctx context.Context) (*model.Session, error) {
	b.mu.Lock()
	if b.session != nil {
		s := *b.session
		b.mu.Unlock()
		return &s, nil
	}
	tok := b.token
	b.mu.Unlock()
	if tok == "" {
		return nil, nil
	}

	var ws api.Session
	err := b.doJSON(ctx, http.MethodGet, "/v1/auth/session", nil, &ws)
	if errors.Is(err, backend.ErrNotAuthenticated) {
		return nil, nil // stale token, already cleared
	}
	if err != nil {
		return nil, err
	}

	s := sessionFromWire(ws)
	b.mu.Lock()
	b.session = &s
	b.mu.Unlock()
	out := s
	return &out, nil
}

func (b *Backend) OnSessionChange(fn func(*model.Session)) (cancel func()) {
	b.mu.Lock()
	id := b.nextCB
	b.nextCB++
	b.callbacks[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.callbacks, id)
		b.mu.Unlock()
	}
}

func (b *Backend) notifySessionChange(s *model.Session) {
	b.mu.Lock()
	fns := make([]func(*model.Session), 0, len(b.callbacks))
	for _, fn := range b.callbacks {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	req := api.CredentialsRequest{Email: email, Password: password}
	var ws api.Session
	if err := b.doJSON(ctx, http.MethodPost, "/v1/auth/login", req, &ws); err != nil {
		return nil, err
	}
	return b.adoptSession(ws)
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	req := api.CredentialsRequest{Email: email, Password: password}
	var resp api.SignupResponse
	if err := b.doJSON(ctx, http.MethodPost, "/v1/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, nil // created, confirmation pending
	}
	return b.adoptSession(*resp.Session)
}

func (b *Backend) SignOut(ctx context.Context) error {
	// Best effort server side; local state clears regardless.
	_ = b.doJSON(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)

	b.mu.Lock()
	had := b.token != ""
	b.token = ""
	b.session = nil
	pinned := b.pinned
	b.pinned = false
	b.mu.Unlock()

	if !had {
		return nil
	}
	if !pinned {
		if err := deleteToken(b.dir); err != nil {
			return err
		}
	}
	b.notifySessionChange(nil)
	b.feed.poke()
	return nil
}

// adoptSession installs a session freshly issued by the server: memory
// cache, credentials file, change callbacks, realtime feed.
func (b *Backend) adoptSession(ws api.Session) (*model.Session, error) {
	s := sessionFromWire(ws)
	b.mu.Lock()
	b.token = ws.Token
	b.pinned = false
	b.session = &s
	b.mu.Unlock()

	if err := saveToken(b.dir, ws.Token, ws.Account.Email, ws.ExpiresAt); err != nil {
		return nil, err
	}
	b.notifySessionChange(&s)
	b.feed.poke()
	out := s
	return &out, nil
}

func sessionFromWire(ws api.Session) model.Session {
	return model.Session{
		Account:     ws.Account,
		AccessToken: ws.Token,
		ExpiresAt:   ws.ExpiresAt,
	}
}

func (b *Backend) Lists(ctx context.Context) ([]model.List, error) {
	var resp api.ListsResponse
	if err := b.doJSON(ctx, http.MethodGet, "/v1/lists", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (b *Backend) CountItems(ctx context.Context, listID string) (model.ListCounts, error) {
	var resp api.CountsResponse
	if err := b.doJSON(ctx, http.MethodGet, "/v1/lists/"+url.PathEscape(listID)+"/counts", nil, &resp); err != nil {
		return model.ListCounts{}, err
	}
	return resp.Data, nil
}

func (b *Backend) ListItems(ctx context.Context, listID string) ([]model.Item, error) {
	var resp api.ItemsResponse
	if err := b.doJSON(ctx, http.MethodGet, "/v1/lists/"+url.PathEscape(listID)+"/items", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (b *Backend) CreateItem(ctx context.Context, listID, text string) (*model.Item, error) {
	req := api.CreateItemRequest{Text: text}
	var resp api.ItemResponse
	if err := b.doJSON(ctx, http.MethodPost, "/v1/lists/"+url.PathEscape(listID)+"/items", req, &resp); err != nil {
		return nil, err
	}
	it := resp.Data
	return &it, nil
}

func (b *Backend) UpdateList(ctx context.Context, id string, fields map[string]any) (*model.List, error) {
	req := api.PatchRequest{Fields: fields}
	var resp api.ListResponse
	if err := b.doJSON(ctx, http.MethodPatch, "/v1/lists/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	l := resp.Data
	return &l, nil
}

func (b *Backend) UpdateItem(ctx context.Context, id string, fields map[string]any) (*model.Item, error) {
	req := api.PatchRequest{Fields: fields}
	var resp api.ItemResponse
	if err := b.doJSON(ctx, http.MethodPatch, "/v1/items/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	it := resp.Data
	return &it, nil
}

func (b *Backend) UpsertPositions(ctx context.Context, table backend.Table, writes []backend.PositionWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if table != backend.TableLists && table != backend.TableItems {
		return fmt.Errorf("upsert positions: unsupported table %q", table)
	}
	req := api.PositionsRequest{Table: string(table), Writes: writes}
	return b.doJSON(ctx, http.MethodPost, "/v1/positions", req, nil)
}

func (b *Backend) DeleteList(ctx context.Context, id string) error {
	return b.doJSON(ctx, http.MethodDelete, "/v1/lists/"+url.PathEscape(id), nil, nil)
}

func (b *Backend) DeleteItems(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.doJSON(ctx, http.MethodPost, "/v1/items/delete", api.DeleteItemsRequest{IDs: ids}, nil)
}

func (b *Backend) CreateList(ctx context.Context, name, icon string) (*model.List, error) {
	req := api.CreateListRequest{Name: name, Icon: icon}
	var resp api.ListResponse
	if err := b.doJSON(ctx, http.MethodPost, "/v1/rpc/create-list", req, &resp); err != nil {
		return nil, err
	}
	l := resp.Data
	return &l, nil
}

func (b *Backend) ShareList(ctx context.Context, listID, email string) error {
	req := api.ShareListRequest{ListID: listID, Email: email}
	return b.doJSON(ctx, http.MethodPost, "/v1/rpc/share-list", req, nil)
}

// Upload streams r to the server's object storage. The body goes raw,
// not JSON-wrapped.
func (b *Backend) Upload(ctx context.Context, bucket, path string, r io.Reader) error {
	u := b.baseURL + "/v1/storage/" + url.PathEscape(bucket) + "/" + escapeObjectPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if tok := b.currentToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return b.apiError(res)
	}
	return nil
}

// PublicURL derives the serving URL of an uploaded object without
// touching the network.
func (b *Backend) PublicURL(bucket, path string) string {
	return b.baseURL + "/storage/" + bucket + "/" + path
}

func (b *Backend) Subscribe(scope backend.Scope, fn func()) (backend.Subscription, error) {
	return b.feed.subscribe(scope, fn)
}

// escapeObjectPath escapes each segment while keeping the separators.
func escapeObjectPath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
