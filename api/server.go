package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	iface "YoloDetServer/interface"
	"YoloDetServer/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultIdleTimeout = 30 * time.Second
	wsReadLimit        = 20 * 1024 * 1024
)

type Server struct {
	runner      iface.Runner
	log         *zap.Logger
	idleTimeout time.Duration
	upgrader    websocket.Upgrader

	sessionMu sync.Mutex
	sessions  map[string]*websocket.Conn

	httpSrv *http.Server
}

type Option func(*Server)

// WithIdleTimeout closes a websocket session that sends nothing for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func New(runner iface.Runner, opts ...Option) *Server {
	s := &Server{
		runner:      runner,
		log:         logger.Log().Named("http"),
		idleTimeout: defaultIdleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: map[string]*websocket.Conn{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/profiles", s.listProfiles)
	r.GET("/api/profiles/:name", s.getProfile)
	r.POST("/api/detect/:name", s.detect)
	r.GET("/ws/:name", s.stream)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Start serves the router on port in the background.
func (s *Server) Start(port int) {
	addr := fmt.Sprintf(":%d", port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		s.log.Info("server listening", zap.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("failed to serve http", zap.Error(err))
		}
	}()
}

// Shutdown closes open websocket sessions, then stops the http server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionMu.Lock()
	for id, conn := range s.sessions {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		delete(s.sessions, id)
	}
	s.sessionMu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) addSession(id string, conn *websocket.Conn) {
	s.sessionMu.Lock()
	s.sessions[id] = conn
	s.sessionMu.Unlock()
}

func (s *Server) releaseSession(id string) {
	s.sessionMu.Lock()
	conn, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionMu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

func (s *Server) Sessions() int {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return len(s.sessions)
}
