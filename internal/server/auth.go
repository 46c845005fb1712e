package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/google/uuid"

	"trolley/internal/api"
)

type tokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(acc *Account) (string, *time.Time, error) {
	exp := time.Now().Add(time.Duration(s.cfg.TokenTTLHours) * time.Hour)
	claims := tokenClaims{
		Sub:              acc.ID,
		Email:            acc.Email,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", nil, err
	}
	return signed, &exp, nil
}

func (s *Server) parseToken(tokenStr string) (*tokenClaims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := t.Claims.(*tokenClaims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// authRequired gates the data plane. The token arrives as a bearer
// header, or as ?token= for websocket clients that cannot set headers.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		if tok == "" {
			tok = strings.TrimSpace(c.Query("token"))
		}
		if tok == "" {
			abortError(c, http.StatusUnauthorized, api.CodeNotAuthenticated, "not signed in")
			return
		}
		claims, err := s.parseToken(tok)
		if err != nil {
			abortError(c, http.StatusUnauthorized, api.CodeNotAuthenticated, "not signed in")
			return
		}
		c.Set("accountID", claims.Sub)
		c.Set("bearerToken", tok)
		if claims.ExpiresAt != nil {
			c.Set("tokenExpiry", claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

func (s *Server) sessionFor(acc *Account) (*api.Session, error) {
	tok, exp, err := s.issueToken(acc)
	if err != nil {
		return nil, err
	}
	return &api.Session{Token: tok, ExpiresAt: exp, Account: wireAccount(*acc)}, nil
}

func (s *Server) handleSignup(c *gin.Context) {
	var in api.CredentialsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "email looks invalid")
		return
	}
	if in.Password == "" {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, "password required")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.AccountByEmail(ctx, email); err == nil {
		abortError(c, http.StatusConflict, api.CodeEmailTaken, "an account with that email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		internalError(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, err)
		return
	}
	acc := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Confirmed:    s.cfg.SignupAutoConfirm,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		internalError(c, err)
		return
	}

	if !acc.Confirmed {
		// Created but unusable until confirmed; the client shows the
		// check-your-mail screen.
		c.JSON(http.StatusCreated, api.SignupResponse{})
		return
	}
	sess, err := s.sessionFor(acc)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.SignupResponse{Session: sess})
}

func (s *Server) handleLogin(c *gin.Context) {
	var in api.CredentialsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		abortError(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	acc, err := s.repo.AccountByEmail(c.Request.Context(), email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusUnauthorized, api.CodeInvalidCredentials, "wrong email or password")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(in.Password)) != nil {
		abortError(c, http.StatusUnauthorized, api.CodeInvalidCredentials, "wrong email or password")
		return
	}
	if !acc.Confirmed {
		abortError(c, http.StatusForbidden, api.CodeEmailNotConfirmed, "confirm your email before signing in")
		return
	}
	sess, err := s.sessionFor(acc)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleSession(c *gin.Context) {
	acc, err := s.repo.AccountByID(c.Request.Context(), accountID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Token outlived its account.
		abortError(c, http.StatusUnauthorized, api.CodeNotAuthenticated, "not signed in")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	out := api.Session{Token: c.GetString("bearerToken"), Account: wireAccount(*acc)}
	if v, ok := c.Get("tokenExpiry"); ok {
		if exp, ok := v.(time.Time); ok {
			out.ExpiresAt = &exp
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleLogout acknowledges sign-out. Tokens are stateless; the client
// discards its copy.
func (s *Server) handleLogout(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
