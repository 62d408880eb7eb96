package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/echorelay-project/echorelay/internal/util"
)

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relay":    s.relay.Stats(),
		"matching": s.relay.Matching().Stats(),
	})
}

// handlePeers lists connected peers, optionally filtered by ?service=.
func (s *Server) handlePeers(c *gin.Context) {
	service := c.Query("service")
	if service != "" {
		if _, ok := s.relay.Service(service); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown service", "service": service})
			return
		}
	}
	peers := s.relay.Peers(service)
	c.JSON(http.StatusOK, gin.H{
		"peers": peers,
		"total": len(peers),
	})
}

func (s *Server) handleServers(c *gin.Context) {
	servers := s.relay.Registry().GetAllInfo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"servers": servers,
		"total":   len(servers),
	})
}

// handleSessions reports lobby sessions on game servers and the login
// token cache.
func (s *Server) handleSessions(c *gin.Context) {
	registry := s.relay.Registry()
	c.JSON(http.StatusOK, gin.H{
		"lobby_sessions": registry.SessionCount(),
		"players":        registry.PlayerCount(),
		"login_sessions": s.relay.Login().Sessions().Len(),
		"matching":       s.relay.Matching().Stats(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	usage, err := util.GetResourceUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"usage": usage}
	if s.health != nil {
		resp["report"] = s.health.LastReport()
	}
	c.JSON(http.StatusOK, resp)
}
