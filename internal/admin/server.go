package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/ndwire/internal/auth"
	"github.com/danmuck/ndwire/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

type Options struct {
	// Name labels request metrics and health responses.
	Name        string
	Addr        string
	CorsOrigins []string
	Tracker     *Tracker
	// Token, when set, is required as a bearer token on /streams.
	Token string
}

// Server is the sink's HTTP admin surface.
type Server struct {
	name     string
	addr     string
	tracker  *Tracker
	guard    gin.HandlerFunc
	router   *gin.Engine
	appeared time.Time
	ready    atomic.Bool
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	name := opts.Name
	if name == "" {
		name = "ndwire"
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:     name,
		addr:     opts.Addr,
		tracker:  tracker,
		router:   r,
		appeared: time.Now(),
	}
	if opts.Token != "" {
		s.guard = auth.RequireToken(auth.StaticToken{Token: opts.Token})
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Tracker() *Tracker {
	return s.tracker
}

// SetReady flips the /ready answer. A sink is ready once its socket is open.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.name,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		ready := s.ready.Load()
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.appeared).String(),
			"service": s.name,
			"version": version,
		})
	})

	streams := []gin.HandlerFunc{}
	if s.guard != nil {
		streams = append(streams, s.guard)
	}
	streams = append(streams, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"streams": s.tracker.Streams(),
		})
	})
	s.router.GET("/streams", streams...)
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// the server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("service", s.name).Str("addr", ln.Addr().String()).Msg("admin server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
