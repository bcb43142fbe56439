package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"load_simulator/internal/leaderboard"
	"load_simulator/internal/profile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// recordRequests feeds every finished request outside the excluded paths
// into the sliding window
func (s *Server) recordRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		for _, prefix := range s.config.Metrics.ExcludedPaths {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}
		durationMs := float64(time.Since(start)) / float64(time.Millisecond)
		s.window.Record(durationMs, c.Writer.Status())
		s.requests.Observe()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) handleMetrics(c *gin.Context) {
	p := s.manager.Profile()
	snap, err := s.builder.Build(c.Request.Context(), p.Level, &p)
	if err != nil {
		s.logger.Error("Failed to build snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}

	name := c.Query("name")
	if name == "" {
		name = c.GetHeader("X-User-Name")
	}
	name, _ = leaderboard.NormalizeName(name)
	s.board.Update(name, snap)

	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSetLoad(c *gin.Context) {
	level, err := profile.ParseLevel(c.Param("level"))
	if errors.Is(err, profile.ErrUnknownLevel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid load level", "allowed": profile.Levels})
		return
	}

	s.manager.SetLevel(level)
	s.logger.Info("Load level changed", zap.String("level", string(level)))

	c.JSON(http.StatusOK, gin.H{"level": level, "profile": s.manager.Profile()})
}

func (s *Server) handleProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profile": s.manager.Profile(),
		"status":  s.manager.Status(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"level":     s.manager.Level(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetIdentity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": leaderboard.DefaultName})
}

type identityRequest struct {
	Name string `json:"name" form:"name"`
}

func (s *Server) handlePostIdentity(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must be at least 2 characters."})
		return
	}
	name, ok := leaderboard.NormalizeName(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must be at least 2 characters."})
		return
	}

	entry := s.board.Ensure(name, s.manager.Level())
	c.JSON(http.StatusOK, gin.H{"ok": true, "entry": entry})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": s.board.Top()})
}

func (s *Server) attackHandler(trigger func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		trigger()
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) handleRecentLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.simulator.RecentLogs()})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":             "load_simulator",
		"collectors":          len(s.collectors),
		"level":               s.manager.Level(),
		"window":              s.window.Window().String(),
		"collection_interval": s.config.Metrics.CollectionInterval.String(),
	})
}
