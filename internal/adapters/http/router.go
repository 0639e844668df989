package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceBot/internal/config"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/dkeye/VoiceBot/internal/logging"
)

const aliveText = "✅ Bot is alive!"

// Sessions is the read side of the orchestrator.
type Sessions interface {
	Sessions() []domain.SessionSnapshot
	Snapshot(room domain.RoomID) (domain.SessionSnapshot, bool)
}

func SetupRouter(cfg *config.Config, sessions Sessions) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Mode == "debug" {
		r.Use(logging.GinMiddleware(log.Logger))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, aliveText)
	})
	r.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// GET /api/sessions: every known room session
	api.GET("/sessions", func(c *gin.Context) {
		list := sessions.Sessions()
		c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
	})

	// GET /api/sessions/:room: one session by chat id
	api.GET("/sessions/:room", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("room"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		snap, ok := sessions.Snapshot(domain.RoomID(id))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
