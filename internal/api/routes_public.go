package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/echorelay-project/echorelay/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "echorelay",
		"version": Version,
	})
}

// handleInfo returns host details and headline counts.
func (s *Server) handleInfo(c *gin.Context) {
	stats := s.relay.Stats()
	c.JSON(http.StatusOK, gin.H{
		"system":       util.GetSystemInfo(),
		"uptime_sec":   stats.UptimeSec,
		"game_servers": stats.GameServers,
		"players":      stats.Players,
		"public_ip":    stats.PublicIP,
		"services":     s.relay.Server().Paths(),
	})
}
