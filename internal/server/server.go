package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/journal"
	"github.com/audiolibrelab/homebooth/internal/service"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

//go:embed web
var webFS embed.FS

// Server is the loopback control and status API for the kiosk.
type Server struct {
	service service.Service
	listen  string
	router  *gin.Engine
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Phase       string              `json:"phase"`
	Screen      installation.Screen `json:"screen"`
	StatusLines []string            `json:"status_lines"`
	Tick        uint64              `json:"tick"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Running     bool                `json:"running"`
	LastError   string              `json:"last_error,omitempty"`
}

// RecordingsResponse represents the JSON response for recordings endpoint
type RecordingsResponse struct {
	Recordings []service.RecordingInfo `json:"recordings"`
	TotalCount int                     `json:"total_count"`
	Directory  string                  `json:"directory"`
}

// HistoryResponse represents the JSON response for history endpoint
type HistoryResponse struct {
	Entries    []journal.Entry `json:"entries"`
	TotalCount int             `json:"total_count"`
}

// New creates the server. Routes are registered immediately so Router can be
// used without Start.
func New(svc service.Service, listen string) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(secure.New(secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "same-origin",
		ContentSecurityPolicy: "default-src 'self'",
	}))

	s := &Server{
		service: svc,
		listen:  listen,
		router:  router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(static.Serve("/", static.EmbedFolder(webFS, "web")))
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/advance", s.handleEvent(installation.EventAdvance))
		api.POST("/reset", s.handleEvent(installation.EventReset))
		api.POST("/rescan", s.handleRescan)
		api.GET("/recordings", s.handleRecordings)
		api.GET("/recordings/:name", s.handleRecordingStream)
		api.GET("/history", s.handleHistory)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Control API listening", "url", fmt.Sprintf("http://%s", s.listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Control API shutdown failed", "error", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "homebooth",
		"running": s.service.Snapshot().Running,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.service.Snapshot()
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, StatusResponse{
		Phase:       snap.Screen.PhaseName,
		Screen:      snap.Screen,
		StatusLines: snap.Screen.StatusLines(),
		Tick:        snap.Tick,
		UpdatedAt:   snap.UpdatedAt,
		Running:     snap.Running,
		LastError:   s.service.GetLastError(),
	})
}

// handleEvent queues an operator event for the loop.
func (s *Server) handleEvent(ev installation.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.service.Snapshot().Running {
			s.sendErrorResponse(c, http.StatusServiceUnavailable, "kiosk loop is not running", "event", ev.String())
			return
		}
		if !s.service.Send(ev) {
			s.sendErrorResponse(c, http.StatusServiceUnavailable, "event inbox full, try again", "event", ev.String())
			return
		}
		slog.Debug("Event queued from API", "event", ev.String())
		c.JSON(http.StatusAccepted, gin.H{"success": true, "event": ev.String()})
	}
}

func (s *Server) handleRescan(c *gin.Context) {
	s.service.Rescan()
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (s *Server) handleRecordings(c *gin.Context) {
	recs := s.service.Recordings()
	c.JSON(http.StatusOK, RecordingsResponse{
		Recordings: recs,
		TotalCount: len(recs),
		Directory:  s.service.GetConfig().Storage.RecordingsDirectory,
	})
}

// handleRecordingStream serves one recording from the store.
func (s *Server) handleRecordingStream(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		s.sendErrorResponse(c, http.StatusBadRequest, "invalid recording name", "name", name)
		return
	}

	dir := s.service.GetConfig().Storage.RecordingsDirectory
	path := filepath.Join(dir, name)

	known := false
	for _, r := range s.service.Recordings() {
		if r.Name == name {
			known = true
			break
		}
	}
	if !known {
		s.sendErrorResponse(c, http.StatusNotFound, "recording not found", "name", name)
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.sendErrorResponse(c, http.StatusNotFound, "recording not found", "name", name, "error", err)
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.Header("Accept-Ranges", "bytes")
	c.File(path)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendErrorResponse(c, http.StatusBadRequest, "limit must be a non-negative integer", "limit", raw)
			return
		}
		limit = n
	}

	entries, err := s.service.History(limit)
	if err != nil {
		s.sendErrorResponse(c, http.StatusInternalServerError, "failed to read history", "error", err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, TotalCount: len(entries)})
}

func (s *Server) sendErrorResponse(c *gin.Context, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode, "path", c.Request.URL.Path}
	logFields = append(logFields, logContext...)
	slog.Warn("Sending error response to client", logFields...)

	c.AbortWithStatusJSON(statusCode, gin.H{
		"success": false,
		"error":   errorMsg,
	})
}

// requestLogger logs API requests through slog at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
