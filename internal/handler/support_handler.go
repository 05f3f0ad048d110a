package handler

import (
	"net/http"

	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// SupportHandler serves the customer facing conversation endpoints. Admins
// may use them for any conversation.
type SupportHandler struct {
	service *services.SupportService
}

func NewSupportHandler(service *services.SupportService) *SupportHandler {
	return &SupportHandler{service: service}
}

// Resolve returns the caller's open conversation, creating one if needed.
func (h *SupportHandler) Resolve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, created, err := h.service.ResolveForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.ResolveConversationResponse{Conversation: conv, Created: created}))
}

// Create opens a new conversation; 409 when the caller already has one open.
func (h *SupportHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.service.CreateConversation(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(conv))
}

func (h *SupportHandler) FindOpen(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.service.FindOpenConversation(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conv))
}

func (h *SupportHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.service.AccessConversation(c.Request.Context(), id, userID, services.IsAdminFromContext(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conv))
}

// Status is the endpoint polled by clients as a backstop for status pushes.
func (h *SupportHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.service.AccessConversation(c.Request.Context(), id, userID, services.IsAdminFromContext(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationStatusResponse{ID: conv.ID.String(), Status: conv.Status}))
}

func (h *SupportHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.service.AccessConversation(ctx, id, userID, services.IsAdminFromContext(ctx)); err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.service.ListMessages(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessageListResponse{Messages: msgs}))
}

func (h *SupportHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	ctx := c.Request.Context()
	isAdmin := services.IsAdminFromContext(ctx)
	if _, err := h.service.AccessConversation(ctx, id, userID, isAdmin); err != nil {
		writeError(c, err)
		return
	}
	m, err := h.service.SendMessage(ctx, id, userID, req.Content, req.IsAdmin && isAdmin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(m))
}

// AdminCheck reports whether the caller holds the support role.
func (h *SupportHandler) AdminCheck(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AdminCheckResponse{
		IsAdmin: services.IsAdminFromContext(c.Request.Context()),
	}))
}
