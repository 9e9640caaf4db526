package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"roomchat-service/internal/cache"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
)

// RoomHandler manages room endpoints: listing, creation, history, invites.
type RoomHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	history  cache.HistoryCache
	imageDir string
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, users repositories.UserRepository, history cache.HistoryCache, imageDir string, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		messages: messages,
		users:    users,
		history:  history,
		imageDir: imageDir,
		audit:    audit,
	}
}

// ListRooms returns the rooms the caller is a member of.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDContextKey)

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom handles POST /rooms. The form carries the room name and an
// optional image; the creator's membership is written in the same
// transaction as the room.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDContextKey)

	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	var imagePath *string
	if file, err := c.FormFile("image"); err == nil {
		stored := uuid.NewString() + filepath.Ext(file.Filename)
		if err := os.MkdirAll(h.imageDir, 0o755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store image"})
			return
		}
		if err := c.SaveUploadedFile(file, filepath.Join(h.imageDir, stored)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store image"})
			return
		}
		imagePath = &stored
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), name, imagePath, userID)
	if err != nil {
		h.audit.Emit(c.Request.Context(), "ERROR", "room creation failed", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "room created", requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, room)
}

// RoomHistory returns the room transcript oldest-first.
func (h *RoomHandler) RoomHistory(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	userID := c.GetInt64(middleware.UserIDContextKey)
	member, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	if msgs, err := h.history.Get(c.Request.Context(), roomID); err == nil {
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
		return
	}

	// The generation observed before the database read fences the cache
	// write below: an append that lands mid-read bumps it, and the stale
	// snapshot is discarded instead of cached.
	generation, genErr := h.history.Generation(c.Request.Context(), roomID)
	if genErr != nil {
		log.Printf("history cache generation read failed: %v", genErr)
	}

	msgs, err := h.messages.ListRoomMessages(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	if genErr == nil {
		if err := h.history.SetIfCurrent(c.Request.Context(), roomID, msgs, generation); err != nil {
			log.Printf("history cache set failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// InviteUser adds a member to a room the caller belongs to.
func (h *RoomHandler) InviteUser(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	userID := c.GetInt64(middleware.UserIDContextKey)
	member, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	var req struct {
		UserID int64 `form:"user_id" json:"user_id" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	if err := h.rooms.AddMember(c.Request.Context(), roomID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not invite user"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user invited to room", requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

// SearchUsers returns accounts matching an email fragment, for invites.
func (h *RoomHandler) SearchUsers(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusOK, gin.H{"users": []any{}})
		return
	}

	users, err := h.users.SearchUsers(c.Request.Context(), term)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	type userResponse struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{ID: u.ID, Email: u.Email})
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}
