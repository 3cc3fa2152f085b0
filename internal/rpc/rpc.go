// Package rpc exposes the management HTTP API a separate operator surface
// (a slash-command bot, an admin dashboard, a CI smoke test) uses to drive
// voice sessions without going through Discord's own gateway: join, leave,
// speak, and status, each a small JSON POST/GET route over gin.
package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"discord-voice-agent/internal/logging"
	"discord-voice-agent/internal/manager"
)

var log = logging.For("rpc")

// Server wraps a *manager.Manager with the gin engine serving its routes.
type Server struct {
	mgr    *manager.Manager
	engine *gin.Engine
}

// New builds the management RPC server. Routes are registered under
// /api/voice; call Run to start listening.
func New(mgr *manager.Manager) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{mgr: mgr, engine: r}

	api := r.Group("/api/voice")
	api.POST("/join", s.handleJoin)
	api.POST("/leave", s.handleLeave)
	api.POST("/speak", s.handleSpeak)
	api.GET("/status", s.handleStatus)

	return s
}

// Run starts the HTTP server, blocking until it stops or errors.
func (s *Server) Run(addr string) error {
	log.Infof("management rpc listening on %s", addr)
	return s.engine.Run(addr)
}

type joinRequest struct {
	GuildID   string `json:"guildId" binding:"required"`
	ChannelID string `json:"channelId" binding:"required"`
}

func (s *Server) handleJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := s.mgr.Join(req.GuildID, req.ChannelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mode": string(mode)})
}

type leaveRequest struct {
	GuildID string `json:"guildId" binding:"required"`
}

func (s *Server) handleLeave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.Leave(req.GuildID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type speakRequest struct {
	GuildID string `json:"guildId" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

func (s *Server) handleSpeak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.Speak(req.GuildID, req.Text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleStatus reports process-wide status (running, configured engine
// mode, every guild with an active session) and, when guildId is given,
// that guild's own active/state/mode on top.
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"success":      true,
		"running":      true,
		"engineMode":   s.mgr.EngineMode(),
		"activeGuilds": s.mgr.ActiveGuilds(),
	}

	if guildID := c.Query("guildId"); guildID != "" {
		st := s.mgr.Status(guildID)
		resp["active"] = st.Active
		resp["state"] = st.State
		resp["mode"] = st.Mode
	}

	c.JSON(http.StatusOK, resp)
}
