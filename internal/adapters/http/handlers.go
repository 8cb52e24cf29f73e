package http

import (
	"errors"
	nethttp "net/http"

	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// API is the control surface a call UI drives.
type API struct {
	Orch     *orch.Orchestrator
	Events   *EventStream
	Identity string
	Limiter  *JoinRateLimiter
}

type joinRequest struct {
	Identity string `json:"identity"`
}

type audioRequest struct {
	Mute *bool `json:"mute"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (a *API) JoinRoom(c *gin.Context) {
	client := c.GetString(clientTokenKey)
	if a.Limiter != nil && !a.Limiter.Allow(client) {
		c.JSON(nethttp.StatusTooManyRequests, gin.H{"error": "too many join attempts"})
		return
	}

	var req joinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, nethttp.StatusBadRequest, err)
			return
		}
	}
	identity := req.Identity
	if identity == "" {
		identity = a.Identity
	}
	room := domain.RoomID(c.Param("room"))

	h, err := a.Orch.JoinRoom(c.Request.Context(), room, domain.Identity(identity))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("client", client).Str("room", string(room)).Msg("join failed")
		switch {
		case errors.Is(err, domain.ErrAlreadyJoined):
			errorJSON(c, nethttp.StatusConflict, err)
		case domain.IsConfigError(err):
			errorJSON(c, nethttp.StatusBadRequest, err)
		case errors.Is(err, domain.ErrRoomLeft):
			errorJSON(c, nethttp.StatusGone, err)
		default:
			errorJSON(c, nethttp.StatusBadGateway, err)
		}
		return
	}

	s := sessions.Default(c)
	s.Set(sessionRoomKey, string(room))
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	c.JSON(nethttp.StatusOK, orch.RoomStatus{Room: h.Room(), Local: h.Local(), Sessions: h.Sessions()})
}

func (a *API) LeaveRoom(c *gin.Context) {
	a.leave(c, domain.RoomID(c.Param("room")))
}

// LeaveCurrentRoom leaves the room remembered in the cookie session.
func (a *API) LeaveCurrentRoom(c *gin.Context) {
	room, _ := sessions.Default(c).Get(sessionRoomKey).(string)
	if room == "" {
		errorJSON(c, nethttp.StatusNotFound, domain.ErrNotJoined)
		return
	}
	a.leave(c, domain.RoomID(room))
}

func (a *API) leave(c *gin.Context, room domain.RoomID) {
	err := a.Orch.LeaveRoom(c.Request.Context(), room)
	if errors.Is(err, domain.ErrNotJoined) {
		errorJSON(c, nethttp.StatusNotFound, err)
		return
	}

	s := sessions.Default(c)
	if cur, _ := s.Get(sessionRoomKey).(string); cur == string(room) {
		s.Delete(sessionRoomKey)
		if serr := s.Save(); serr != nil {
			log.Error().Err(serr).Str("module", "adapters.http").Msg("save session")
		}
	}

	resp := gin.H{"left": room}
	if err != nil {
		// The room is gone either way; teardown errors are informational.
		resp["warning"] = err.Error()
	}
	c.JSON(nethttp.StatusOK, resp)
}

func (a *API) ListRooms(c *gin.Context) {
	c.JSON(nethttp.StatusOK, a.Orch.Rooms())
}

func (a *API) ToggleAudio(c *gin.Context) {
	var req audioRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Mute == nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "body must be {\"mute\": bool}"})
		return
	}
	a.Orch.ToggleLocalAudio(*req.Mute)
	c.JSON(nethttp.StatusOK, gin.H{"mute": *req.Mute})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *nethttp.Request) bool { return true },
}

func (a *API) StreamEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	a.Events.Serve(ws)
}
