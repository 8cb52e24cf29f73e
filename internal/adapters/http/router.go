package http

import (
	"time"

	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenCookie = "ct"
	clientTokenKey    = "client_token"
	sessionRoomKey    = "room"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, o *orch.Orchestrator, events *EventStream) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeshcallSessions", store))
	r.Use(ClientTokenMiddleware())

	api := &API{
		Orch:     o,
		Events:   events,
		Identity: cfg.Identity,
		Limiter:  NewJoinRateLimiter(5, 10*time.Second),
	}

	g := r.Group("/api")
	g.POST("/rooms/:room/join", api.JoinRoom)
	g.DELETE("/rooms/:room", api.LeaveRoom)
	g.DELETE("/room", api.LeaveCurrentRoom)
	g.GET("/rooms", api.ListRooms)
	g.POST("/audio", api.ToggleAudio)
	g.GET("/events", api.StreamEvents)

	log.Info().Str("module", "adapters.http").Str("identity", cfg.Identity).Msg("router setup")
	return r
}
