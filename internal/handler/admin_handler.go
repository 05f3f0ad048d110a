package handler

import (
	"net/http"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the support console endpoints. Routes are mounted
// behind middleware.RequireAdmin.
type AdminHandler struct {
	service *services.SupportService
}

func NewAdminHandler(service *services.SupportService) *AdminHandler {
	return &AdminHandler{service: service}
}

// Inbox lists every conversation by most recent activity with owner labels.
func (h *AdminHandler) Inbox(c *gin.Context) {
	items, err := h.service.ListSummaries(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.InboxResponse{Conversations: items}))
}

func (h *AdminHandler) OwnerLabel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	label, err := h.service.OwnerLabel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.LabelResponse{UserID: id.String(), Label: label}))
}

func (h *AdminHandler) Close(c *gin.Context) {
	h.setStatus(c, conversation.StatusClosed)
}

// Reopen fails with 409 when the owner already has another open conversation.
func (h *AdminHandler) Reopen(c *gin.Context) {
	h.setStatus(c, conversation.StatusOpen)
}

func (h *AdminHandler) setStatus(c *gin.Context, status conversation.Status) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.service.SetStatus(c.Request.Context(), id, status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conv))
}

func (h *AdminHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteConversation(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.OK{OK: true}))
}
