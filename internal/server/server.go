// Package server is the trolley sync server: a gin HTTP API over a
// gorm-backed store, with JWT sessions, a websocket change feed, disk
// object storage, and optional AMQP fanout between instances.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trolley/internal/api"
	"trolley/internal/backend"
)

type Server struct {
	cfg    Config
	repo   *Repo
	hub    *hub
	files  *diskStore
	bridge *changeBridge
	router *gin.Engine

	shutdownTracer func(context.Context) error
}

// New opens the database, runs migrations, and wires the optional AMQP
// and OTLP integrations.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := NewRepo(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Server{
		cfg:   cfg,
		repo:  repo,
		hub:   newHub(),
		files: newDiskStore(cfg.StorageDir),
	}

	if cfg.AMQPURL != "" {
		bridge, err := newChangeBridge(cfg.AMQPURL, s.hub)
		if err != nil {
			return nil, fmt.Errorf("amqp bridge: %w", err)
		}
		s.bridge = bridge
	}
	if cfg.OTLPEndpoint != "" {
		shutdown, err := initTracer(cfg.OTLPEndpoint, cfg.Env)
		if err != nil {
			return nil, fmt.Errorf("otel: %w", err)
		}
		s.shutdownTracer = shutdown
	}

	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Run() error {
	log.Println("trolley sync server on", s.cfg.Addr)
	return s.router.Run(s.cfg.Addr)
}

func (s *Server) Close() error {
	s.hub.closeAll()
	var err error
	if s.bridge != nil {
		err = s.bridge.Close()
	}
	if s.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := s.shutdownTracer(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.Default()
	if s.shutdownTracer != nil {
		r.Use(traceRequests())
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/storage/:bucket/*path", s.handleServeObject)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/signup", s.handleSignup)
		v1.POST("/auth/login", s.handleLogin)

		secured := v1.Group("")
		secured.Use(s.authRequired())
		{
			secured.GET("/auth/session", s.handleSession)
			secured.POST("/auth/logout", s.handleLogout)

			secured.GET("/lists", s.handleLists)
			secured.PATCH("/lists/:id", s.handleUpdateList)
			secured.DELETE("/lists/:id", s.handleDeleteList)
			secured.GET("/lists/:id/counts", s.handleListCounts)
			secured.GET("/lists/:id/items", s.handleListItems)
			secured.POST("/lists/:id/items", s.handleCreateItem)

			secured.PATCH("/items/:id", s.handleUpdateItem)
			secured.POST("/items/delete", s.handleDeleteItems)

			secured.POST("/positions", s.handlePositions)

			secured.POST("/rpc/create-list", s.handleCreateList)
			secured.POST("/rpc/share-list", s.handleShareList)

			secured.POST("/storage/:bucket/*path", s.handleUpload)
			secured.GET("/realtime", s.handleRealtime)
		}
	}
	return r
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, api.Error{Code: code, Message: message})
}

func internalError(c *gin.Context, err error) {
	log.Println("internal error:", err)
	abortError(c, http.StatusInternalServerError, api.CodeInternal, "internal error")
}

func accountID(c *gin.Context) string { return c.GetString("accountID") }

// requireMember authorizes the caller for one list. Lists the caller
// cannot see get the same generic forbidden as lists that do not exist.
func (s *Server) requireMember(c *gin.Context, listID string) bool {
	ok, err := s.repo.IsMember(c.Request.Context(), listID, accountID(c))
	if err != nil {
		internalError(c, err)
		return false
	}
	if !ok {
		abortError(c, http.StatusForbidden, api.CodeNotAuthorized, "not a member of this list")
		return false
	}
	return true
}

// publish fans one change event out to local websocket clients and, when
// bridged, to the other server instances.
func (s *Server) publish(ctx context.Context, table backend.Table, listID string, audience []string) {
	ev := changeEvent{
		ChangeEvent: api.ChangeEvent{Type: api.EventTypeChange, Table: string(table), ListID: listID},
		Audience:    audience,
	}
	s.hub.deliver(ev)
	if s.bridge != nil {
		if err := s.bridge.publish(ctx, ev); err != nil {
			log.Println("publish change:", err)
		}
	}
}

// publishToMembers emits one change event whose audience is the list's
// current membership.
func (s *Server) publishToMembers(c *gin.Context, table backend.Table, listID string) {
	ctx := c.Request.Context()
	aud, err := s.repo.MemberIDs(ctx, listID)
	if err != nil {
		log.Println("resolve audience:", err)
		return
	}
	s.publish(ctx, table, listID, aud)
}
