package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/relay"
	"github.com/echorelay-project/echorelay/internal/storage"
)

type accountView struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	IsModerator bool       `json:"is_moderator"`
	Banned      bool       `json:"banned"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
}

func viewAccount(a *storage.Account) accountView {
	return accountView{
		ID:          a.ID.String(),
		DisplayName: a.DisplayName(),
		IsModerator: a.IsModerator,
		Banned:      a.Banned(time.Now()),
		BannedUntil: a.BannedUntil,
	}
}

// accountError maps moderation errors to HTTP responses.
func accountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, relay.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func subject(c *gin.Context) string {
	sub, _ := c.Get("subject")
	s, _ := sub.(string)
	return s
}

func (s *Server) handleGetAccount(c *gin.Context) {
	account, err := s.relay.Account(c.Request.Context(), c.Param("id"))
	if err != nil {
		accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(account))
}

type banRequest struct {
	Until   *time.Time `json:"until"`
	Minutes int        `json:"minutes"`
}

// handleBan bans an account until an absolute time or for a number of
// minutes.
func (s *Server) handleBan(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var until time.Time
	switch {
	case req.Until != nil:
		until = *req.Until
	case req.Minutes > 0:
		until = time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "until or minutes is required"})
		return
	}

	account, err := s.relay.Ban(c.Request.Context(), c.Param("id"), until)
	if err != nil {
		accountError(c, err)
		return
	}
	s.logger.Info().Str("user", c.Param("id")).Str("by", subject(c)).Msg("API: account banned")
	c.JSON(http.StatusOK, viewAccount(account))
}

func (s *Server) handleUnban(c *gin.Context) {
	account, err := s.relay.Unban(c.Request.Context(), c.Param("id"))
	if err != nil {
		accountError(c, err)
		return
	}
	s.logger.Info().Str("user", c.Param("id")).Str("by", subject(c)).Msg("API: account unbanned")
	c.JSON(http.StatusOK, viewAccount(account))
}

// handleKick removes a user from every game server without banning them.
func (s *Server) handleKick(c *gin.Context) {
	id, err := protocol.ParseXPlatformID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n := s.relay.Registry().KickUser(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"kicked": n})
}

type moderatorRequest struct {
	Moderator *bool `json:"moderator" binding:"required"`
}

func (s *Server) handleSetModerator(c *gin.Context) {
	var req moderatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account, err := s.relay.SetModerator(c.Request.Context(), c.Param("id"), *req.Moderator)
	if err != nil {
		accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(account))
}
