// internal/handler/reader_handler.go
package handler

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfid-service/internal/driver/uhf"
	"rfid-service/internal/service"
	"rfid-service/internal/utils"
)

// ReaderHandler handles reader control and inventory HTTP requests
type ReaderHandler struct {
	readerService *service.ReaderService
	logger        *utils.ServiceLogger
}

// NewReaderHandler creates a new reader handler
func NewReaderHandler(readerService *service.ReaderService, logger *zap.Logger) *ReaderHandler {
	return &ReaderHandler{
		readerService: readerService,
		logger:        utils.NewServiceLogger(logger, "reader-handler"),
	}
}

// RegisterRoutes registers reader control routes
func (h *ReaderHandler) RegisterRoutes(router *gin.RouterGroup) {
	reader := router.Group("/reader")
	{
		reader.POST("/setup", h.ApplySetup)
		reader.POST("/select", h.SelectEPC)
		reader.POST("/inventory/single", h.SingleInventory)
		reader.POST("/memory/read", h.ReadMemory)
		reader.POST("/memory/write", h.WriteMemory)
	}

	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.StartSession)
		sessions.DELETE("/current", h.StopSession)
		sessions.GET("/current", h.SessionStatus)
		sessions.GET("/:id/tags", h.SessionTags)
	}

	router.GET("/tags", h.RecentTags)
}

// ApplySetup pushes the configured region, channel and power to the reader
func (h *ReaderHandler) ApplySetup(c *gin.Context) {
	if err := h.readerService.ApplySetup(c.Request.Context()); err != nil {
		h.respondCommandError(c, "Failed to apply reader setup", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Reader setup applied", nil)
}

// SelectRequest narrows inventory to one EPC
type SelectRequest struct {
	EPC string `json:"epc" binding:"required"`
}

// SelectEPC sets the select mask on the reader
func (h *ReaderHandler) SelectEPC(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.readerService.SelectEPC(c.Request.Context(), req.EPC); err != nil {
		h.respondCommandError(c, "Failed to select EPC", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "EPC selected", gin.H{"epc": req.EPC})
}

// SingleInventory performs one single-shot inventory round
func (h *ReaderHandler) SingleInventory(c *gin.Context) {
	tag, err := h.readerService.SingleInventory(c.Request.Context())
	if err != nil {
		if errors.Is(err, uhf.ErrNoTag) || errors.Is(err, uhf.ErrNoResponse) {
			utils.ErrorResponse(c, http.StatusNotFound, "No tag found", err)
			return
		}
		h.respondCommandError(c, "Single inventory failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Tag found", tag)
}

// MemoryReadRequest addresses one span of tag memory
type MemoryReadRequest struct {
	Bank     byte   `json:"bank"`
	Offset   uint16 `json:"offset"`
	Count    uint16 `json:"count" binding:"required"`
	Password string `json:"password,omitempty"`
}

// ReadMemory reads words from a tag memory bank
func (h *ReaderHandler) ReadMemory(c *gin.Context) {
	var req MemoryReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	password, err := decodePassword(req.Password)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid access password", err)
		return
	}

	data, err := h.readerService.ReadMemory(c.Request.Context(), req.Bank, req.Offset, req.Count, password)
	if err != nil {
		h.respondCommandError(c, "Memory read failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Memory read", gin.H{
		"bank":   req.Bank,
		"offset": req.Offset,
		"count":  req.Count,
		"data":   hex.EncodeToString(data),
	})
}

// MemoryWriteRequest carries hex-encoded data for one memory bank span
type MemoryWriteRequest struct {
	Bank     byte   `json:"bank"`
	Offset   uint16 `json:"offset"`
	Data     string `json:"data" binding:"required"`
	Password string `json:"password,omitempty"`
}

// WriteMemory writes words into a tag memory bank
func (h *ReaderHandler) WriteMemory(c *gin.Context) {
	var req MemoryWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	data, err := hex.DecodeString(req.Data)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Data must be hex encoded", err)
		return
	}

	password, err := decodePassword(req.Password)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid access password", err)
		return
	}

	if err := h.readerService.WriteMemory(c.Request.Context(), req.Bank, req.Offset, data, password); err != nil {
		h.respondCommandError(c, "Memory write failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Memory written", gin.H{
		"bank":   req.Bank,
		"offset": req.Offset,
		"words":  len(data) / 2,
	})
}

// StartSession begins a continuous inventory session
func (h *ReaderHandler) StartSession(c *gin.Context) {
	var req service.SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	sessionID, err := h.readerService.StartSession(&req)
	if err != nil {
		if errors.Is(err, service.ErrSessionActive) {
			utils.ErrorResponse(c, http.StatusConflict, "A session is already running", err)
			return
		}
		h.logger.Error("Failed to start session", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to start session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Session started", gin.H{
		"session_id": sessionID,
	})
}

// StopSession cancels the running session
func (h *ReaderHandler) StopSession(c *gin.Context) {
	stats, err := h.readerService.StopSession(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			utils.ErrorResponse(c, http.StatusNotFound, "No active session", err)
			return
		}
		h.logger.Error("Failed to stop session", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to stop session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session stopped", stats)
}

// SessionStatus reports the current or most recent session
func (h *ReaderHandler) SessionStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session status", h.readerService.Status())
}

// SessionTags lists persisted tags from one session
func (h *ReaderHandler) SessionTags(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	tags, err := h.readerService.TagsBySession(c.Request.Context(), sessionID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list session tags", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session tags", gin.H{
		"session_id": sessionID,
		"count":      len(tags),
		"tags":       tags,
	})
}

// RecentTags lists the most recently persisted tags
func (h *ReaderHandler) RecentTags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	tags, err := h.readerService.RecentTags(c.Request.Context(), limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list tags", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Recent tags", gin.H{
		"count": len(tags),
		"tags":  tags,
	})
}

// respondCommandError maps driver outcomes onto HTTP statuses
func (h *ReaderHandler) respondCommandError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, service.ErrSessionActive):
		utils.ErrorResponse(c, http.StatusConflict, "A session is already running", err)
	case errors.Is(err, uhf.ErrNoResponse):
		utils.ErrorResponse(c, http.StatusGatewayTimeout, "Reader did not respond", err)
	default:
		var readerErr *uhf.ReaderError
		if errors.As(err, &readerErr) {
			utils.ErrorResponse(c, http.StatusUnprocessableEntity, message, err)
			return
		}
		h.logger.Error(message, zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}

func decodePassword(hexPassword string) ([]byte, error) {
	if hexPassword == "" {
		return nil, nil
	}
	return hex.DecodeString(hexPassword)
}
