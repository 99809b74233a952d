package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"connectrpc.com/connect"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gennia/domain/room"
	"gennia/storage"
)

// MapStore serves custom map metadata.
type MapStore interface {
	room.MapLookup
	CreateMap(ctx context.Context, name string, width, height int, creatorID string) (string, error)
	ViewMap(ctx context.Context, mapID string) (storage.MapDetails, error)
}

type Deps struct {
	Rooms          room.Service
	Hub            *Hub
	Players        PlayerStore
	Maps           MapStore
	Socket         http.Handler
	AllowedOrigins []string
	ConnectOptions []connect.HandlerOption
}

// CreateServer returns an engine that only serves the allowed origins.
// Requests without an Origin header come from non-browser clients and pass.
func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowCredentials: true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{
				"Content-Type",
				"Connect-Protocol-Version",
				"Connect-Timeout-Ms",
				"Upgrade",
				"Connection",
				"Sec-WebSocket-Key",
				"Sec-WebSocket-Version",
				"Sec-WebSocket-Extensions",
				"Sec-WebSocket-Protocol",
			},
		}))
	}
	return r
}

// NewRouter wires the lobby service, the event socket and the REST api.
func NewRouter(deps Deps) *gin.Engine {
	r := CreateServer(deps.AllowedOrigins)

	for path, h := range New(deps.Rooms, deps.Hub).Handlers(deps.ConnectOptions...) {
		r.POST(path, gin.WrapH(h))
	}
	r.GET("/socket", gin.WrapH(deps.Socket))

	api := &apiHandler{rooms: deps.Rooms, players: deps.Players, maps: deps.Maps}
	{
		group := r.Group("/api")
		group.GET("/rooms", api.ListRoomsHandler)
		group.POST("/register", api.RegisterHandler)
		group.GET("/maps/:map_id", api.GetMapHandler)
		group.POST("/maps", api.CreateMapHandler)
	}
	return r
}

type apiHandler struct {
	rooms   room.Service
	players PlayerStore
	maps    MapStore
}

func (h *apiHandler) ListRoomsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.rooms.ListSummaries())
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email"`
}

func (h *apiHandler) RegisterHandler(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		return
	}

	id, err := h.players.RegisterPlayer(ctx.Request.Context(), req.Username, req.Email)
	switch {
	case errors.Is(err, storage.ErrDuplicateUsername):
		ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "username-taken"})
		return
	case err != nil:
		slog.Error("player registration failed", "username", req.Username, "error", err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"player_id": id, "username": req.Username})
}

func (h *apiHandler) GetMapHandler(ctx *gin.Context) {
	mapID := ctx.Param("map_id")
	if _, err := uuid.Parse(mapID); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-map-id"})
		return
	}

	details, err := h.maps.ViewMap(ctx.Request.Context(), mapID)
	switch {
	case errors.Is(err, room.ErrMapNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "map-not-found"})
		return
	case err != nil:
		slog.Error("map lookup failed", "map", mapID, "error", err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}
	ctx.JSON(http.StatusOK, details)
}

type createMapRequest struct {
	Name      string `json:"name" binding:"required,max=64"`
	Width     int    `json:"width" binding:"required,min=1,max=100"`
	Height    int    `json:"height" binding:"required,min=1,max=100"`
	CreatorID string `json:"creator_id" binding:"omitempty,uuid"`
}

func (h *apiHandler) CreateMapHandler(ctx *gin.Context) {
	var req createMapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		return
	}

	id, err := h.maps.CreateMap(ctx.Request.Context(), req.Name, req.Width, req.Height, req.CreatorID)
	if err != nil {
		slog.Error("map creation failed", "name", req.Name, "error", err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}
	ctx.JSON(http.StatusCreated, room.MapInfo{ID: id, Name: req.Name})
}
