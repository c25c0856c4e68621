package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"characterlab/internal/auth"
	"characterlab/internal/engine"
	"characterlab/internal/models"
	"characterlab/internal/repo"
	"characterlab/internal/simulator"
)

// Handler wires HTTP routes to the repositories and the conversation
// engine.
type Handler struct {
	users      *repo.Users
	characters *repo.Characters
	rooms      *repo.Rooms
	chats      *repo.Chats
	engine     *engine.Engine
	auth       *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(users *repo.Users, characters *repo.Characters, rooms *repo.Rooms, chats *repo.Chats, eng *engine.Engine, authService *auth.Service) *Handler {
	return &Handler{
		users:      users,
		characters: characters,
		rooms:      rooms,
		chats:      chats,
		engine:     eng,
		auth:       authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/login", h.login)

	private := api.Group("")
	private.Use(h.auth.RequireAuth())
	private.POST("/logout", h.logout)
	private.GET("/profile", h.getProfile)
	private.PUT("/profile", h.saveProfile)

	private.GET("/characters", h.listCharacters)
	private.POST("/characters", h.createCharacter)
	private.GET("/characters/:id", h.getCharacter)
	private.DELETE("/characters/:id", h.deleteCharacter)
	private.POST("/characters/:id/retrain", h.retrainCharacter)
	private.GET("/characters/:id/messages", h.getChatHistory)
	private.POST("/characters/:id/messages", h.sendChatMessage)
	private.GET("/characters/:id/export", h.exportChatHistory)

	private.GET("/rooms", h.listRooms)
	private.POST("/rooms", h.createRoom)
	private.GET("/rooms/:id", h.getRoom)
	private.PUT("/rooms/:id", h.updateRoom)
	private.DELETE("/rooms/:id", h.deleteRoom)
	private.DELETE("/rooms/:id/participants/:characterId", h.removeParticipant)
	private.GET("/rooms/:id/messages", h.getRoomHistory)
	private.POST("/rooms/:id/messages", h.sendRoomMessage)
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, engine.ErrReplyPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, simulator.ErrEmptyPrompt),
		errors.Is(err, engine.ErrCharacterNotReady),
		errors.Is(err, engine.ErrMissingCharacterFields),
		errors.Is(err, engine.ErrInvalidDatasetType),
		errors.Is(err, engine.ErrRoomNameRequired),
		errors.Is(err, engine.ErrTooFewParticipants):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type loginRequest struct {
	Email string `json:"email"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.users.Login(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookie(c, authToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"auth_token": authToken,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	h.clearAuthCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.users.Profile(c.Request.Context()))
}

func (h *Handler) saveProfile(c *gin.Context) {
	var profile models.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.users.SaveProfile(c.Request.Context(), profile); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) listCharacters(c *gin.Context) {
	characters := h.characters.List(c.Request.Context())
	if characters == nil {
		characters = []models.Character{}
	}
	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

type createCharacterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Dataset     string `json:"dataset"`
	Avatar      string `json:"avatar"`
}

func (h *Handler) createCharacter(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	character, err := h.engine.CreateCharacter(c.Request.Context(), engine.CreateCharacterRequest{
		Name:        req.Name,
		Description: req.Description,
		Dataset:     req.Dataset,
		Avatar:      req.Avatar,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, character)
}

func (h *Handler) getCharacter(c *gin.Context) {
	character, err := h.characters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) deleteCharacter(c *gin.Context) {
	if err := h.characters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) retrainCharacter(c *gin.Context) {
	character, err := h.engine.Retrain(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, character)
}

func (h *Handler) getChatHistory(c *gin.Context) {
	characterID := c.Param("id")
	if _, err := h.characters.Get(c.Request.Context(), characterID); err != nil {
		h.fail(c, err)
		return
	}
	history := h.chats.History(c.Request.Context(), characterID)
	if history == nil {
		history = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (h *Handler) exportChatHistory(c *gin.Context) {
	characterID := c.Param("id")
	character, err := h.characters.Get(c.Request.Context(), characterID)
	if err != nil {
		h.fail(c, err)
		return
	}
	raw, err := h.chats.Export(c.Request.Context(), characterID)
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := repo.ExportFilename(character.Name)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", raw)
}

type promptRequest struct {
	Text string `json:"text"`
}

func (h *Handler) sendChatMessage(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userMsg, results, err := h.engine.SubmitPrompt(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}

	sendEvent, ok := h.startEventStream(c)
	if !ok {
		return
	}
	if err := sendEvent("ack", gin.H{"message": userMsg}); err != nil {
		return
	}
	select {
	case result := <-results:
		if result.Err != nil {
			_ = sendEvent("error", gin.H{"message": result.Err.Error()})
			return
		}
		_ = sendEvent("done", gin.H{"message": result.Message})
	case <-time.After(engine.ReplyTimeout):
		_ = sendEvent("error", gin.H{"message": "reply timed out"})
	}
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms := h.rooms.List(c.Request.Context())
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type createRoomRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Participants []string `json:"participants"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.engine.CreateRoom(c.Request.Context(), req.Name, req.Description, req.Participants)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type updateRoomRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

func (h *Handler) updateRoom(c *gin.Context) {
	var req updateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.rooms.Update(c.Request.Context(), c.Param("id"), func(room *models.ChatRoom) {
		if req.Name != nil {
			room.Name = *req.Name
		}
		if req.Description != nil {
			room.Description = *req.Description
		}
		if req.IsActive != nil {
			room.IsActive = *req.IsActive
		}
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) deleteRoom(c *gin.Context) {
	if err := h.rooms.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeParticipant(c *gin.Context) {
	room, err := h.rooms.RemoveParticipant(c.Request.Context(), c.Param("id"), c.Param("characterId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) getRoomHistory(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := h.rooms.Get(c.Request.Context(), roomID); err != nil {
		h.fail(c, err)
		return
	}
	history := h.chats.RoomHistory(c.Request.Context(), roomID)
	if history == nil {
		history = []models.RoomMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (h *Handler) sendRoomMessage(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userMsg, results, err := h.engine.SubmitRoomPrompt(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}

	sendEvent, ok := h.startEventStream(c)
	if !ok {
		return
	}
	if err := sendEvent("ack", gin.H{"message": userMsg}); err != nil {
		return
	}
	select {
	case result := <-results:
		if result.Err != nil {
			_ = sendEvent("error", gin.H{"message": result.Err.Error()})
			return
		}
		if result.Messages == nil {
			result.Messages = []models.RoomMessage{}
		}
		_ = sendEvent("done", gin.H{"messages": result.Messages})
	case <-time.After(engine.ReplyTimeout):
		_ = sendEvent("error", gin.H{"message": "reply timed out"})
	}
}

// startEventStream switches the response to SSE and returns an event writer.
func (h *Handler) startEventStream(c *gin.Context) (func(event string, payload interface{}) error, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	return func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, true
}

func (h *Handler) setAuthCookie(c *gin.Context, authToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
