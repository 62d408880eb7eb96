package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
)

const redacted = "********"

// redact blanks every secret in a config snapshot.
func redact(cfg *config.Config) *config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.ServerDB.APIKey)
	mask(&cfg.Storage.RedisPassword)
	mask(&cfg.API.JWTSecret)
	mask(&cfg.MQTT.Password)
	return cfg
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.YAML(http.StatusOK, redact(s.cfg.Snapshot()))
}

type updateRequest struct {
	Section string `json:"section" binding:"required"`
	Key     string `json:"key" binding:"required"`
	Value   any    `json:"value"`
}

// handleUpdateConfig sets one field, validates the result and saves it.
// Most fields take effect on restart.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.Snapshot()
	if err := s.cfg.UpdateField(req.Section, req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.Restore(previous)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "details": result.Errors})
		return
	}
	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	if s.eventBus != nil {
		s.eventBus.Emit(c.Request.Context(), events.Event{
			Type:    events.EventConfigChanged,
			Source:  "api",
			Payload: events.ConfigChangedPayload{Section: req.Section, Key: req.Key, Value: req.Value},
		})
	}
	s.logger.Info().Str("section", req.Section).Str("key", req.Key).Str("by", subject(c)).Msg("API: config updated")
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// handleServiceConfig returns the locator document for game clients, or
// for game servers with ?server=true.
func (s *Server) handleServiceConfig(c *gin.Context) {
	forServer, _ := strconv.ParseBool(c.Query("server"))
	host := c.DefaultQuery("host", s.relay.AdvertisedHost())
	c.JSON(http.StatusOK, s.relay.ServiceConfig(host, forServer))
}
