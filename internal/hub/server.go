// Package hub serves a remote.Store over HTTP so ledger clients can share
// one backend: a small REST surface for rows and a websocket changefeed per
// table.
//
//	GET  /health
//	GET  /tables/:table?column=c&value=v1&value=v2
//	POST /tables/:table/upsert    {"rows": [...]}
//	POST /tables/:table/delete    {"column": "c", "values": [...]}
//	GET  /tables/:table/changes   websocket, one JSON remote.Change per line
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/remote"
)

// Server exposes a backend store.
type Server struct {
	store    remote.Store
	log      zerolog.Logger
	origins  []string
	upgrader websocket.Upgrader

	mu     sync.Mutex
	hubs   map[remote.Table]*tableHub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAllowedOrigins restricts CORS and websocket origins. The default
// allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a server for store. Call Start before serving changefeeds.
func New(store remote.Store, opts ...Option) *Server {
	s := &Server{
		store: store,
		log:   zerolog.Nop(),
		hubs:  make(map[remote.Table]*tableHub),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start subscribes to every table of the backend and starts relaying.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, table := range remote.Tables {
		sub, err := s.store.Subscribe(ctx, table)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("subscribe backend %s: %w", table, err)
		}
		h := newTableHub(table, sub, s.log)
		s.mu.Lock()
		s.hubs[table] = h
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h.run(runCtx)
		}()
	}
	s.log.Info().Int("tables", len(remote.Tables)).Msg("hub started")
	return nil
}

// Close stops relaying and closes the backend subscriptions.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	hubs := s.hubs
	s.hubs = make(map[remote.Table]*tableHub)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	var errs []error
	for _, h := range hubs {
		errs = append(errs, h.sub.Close())
	}
	return errors.Join(errs...)
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(s.origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	tables := router.Group("/tables/:table", s.resolveTable)
	{
		tables.GET("", s.selectRows)
		tables.POST("/upsert", s.upsertRows)
		tables.POST("/delete", s.deleteRows)
		tables.GET("/changes", s.serveChanges)
	}
	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("hub listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) hub(table remote.Table) (*tableHub, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[table]
	return h, ok
}
