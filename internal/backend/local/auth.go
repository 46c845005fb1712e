package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trolley/internal/backend"
	"trolley/internal/model"

	"golang.org/x/crypto/bcrypt"
)

const metaSessionToken = "session_token"

// Session implements backend.Auth. A nil session with nil error means
// signed out.
func (b *Backend) Session(ctx context.Context) (*model.Session, error) {
	token, err := b.readMeta(ctx, metaSessionToken)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	sess, err := b.sessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// Stale pointer to a deleted session row.
		_ = b.writeMeta(ctx, metaSessionToken, "")
	}
	return sess, nil
}

// OnSessionChange registers fn for sign-in/sign-out transitions.
// Callbacks run synchronously on the goroutine that changed the state.
func (b *Backend) OnSessionChange(fn func(*model.Session)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextCB++
	id := b.nextCB
	b.callbacks[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.callbacks, id)
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

func (b *Backend) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if password == "" {
		return nil, errors.New("empty password")
	}
	var exists int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, backend.ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	id, err := newID("acc")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	// Local accounts are always confirmed; there is no mail loop to wait on.
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO accounts(id, email, password_hash, confirmed, created_at_unixms) VALUES(?, ?, ?, 1, ?)`,
		id, email, string(hash), now.UnixMilli())
	if err != nil {
		return nil, err
	}
	return b.startSession(ctx, model.Account{ID: id, Email: email, CreatedAt: now})
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		acct      model.Account
		hash      string
		confirmed int
		createdMs int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, confirmed, created_at_unixms FROM accounts WHERE email = ?`, email).
		Scan(&acct.ID, &acct.Email, &hash, &confirmed, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, backend.ErrInvalidCredentials
	}
	if confirmed == 0 {
		return nil, backend.ErrEmailNotConfirmed
	}
	acct.CreatedAt = time.UnixMilli(createdMs).UTC()
	return b.startSession(ctx, acct)
}

func (b *Backend) SignOut(ctx context.Context) error {
	token, err := b.readMeta(ctx, metaSessionToken)
	if err != nil {
		return err
	}
	if token != "" {
		if _, err := b.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
			return err
		}
	}
	if err := b.writeMeta(ctx, metaSessionToken, ""); err != nil {
		return err
	}
	b.notifySessionChange(nil)
	return nil
}

func (b *Backend) startSession(ctx context.Context, acct model.Account) (*model.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO sessions(token, account_id, created_at_unixms) VALUES(?, ?, ?)`,
		token, acct.ID, time.Now().UTC().UnixMilli())
	if err != nil {
		return nil, err
	}
	if err := b.writeMeta(ctx, metaSessionToken, token); err != nil {
		return nil, err
	}
	sess := &model.Session{Account: acct, AccessToken: token}
	b.notifySessionChange(sess)
	return sess, nil
}

func (b *Backend) sessionByToken(ctx context.Context, token string) (*model.Session, error) {
	var (
		acct      model.Account
		createdMs int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT a.id, a.email, a.created_at_unixms
		 FROM sessions s JOIN accounts a ON a.id = s.account_id
		 WHERE s.token = ?`, token).
		Scan(&acct.ID, &acct.Email, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acct.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &model.Session{Account: acct, AccessToken: token}, nil
}

// currentAccountID resolves the signed-in account for data-plane calls.
func (b *Backend) currentAccountID(ctx context.Context) (string, error) {
	sess, err := b.Session(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", backend.ErrNotAuthenticated
	}
	return sess.Account.ID, nil
}

func (b *Backend) readMeta(ctx context.Context, k string) (string, error) {
	var v string
	err := b.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (b *Backend) writeMeta(ctx context.Context, k, v string) error {
	_, err := b.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(k, v) VALUES(?, ?)`, k, v)
	return err
}
