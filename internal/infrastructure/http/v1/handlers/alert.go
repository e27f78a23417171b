package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// AlertHandler exposes alert reads and on-demand evaluation.
type AlertHandler struct {
	*BaseHandler
	alerts *alerts.Service
}

// NewAlertHandler creates an alert handler.
func NewAlertHandler(base *BaseHandler, svc *alerts.Service) *AlertHandler {
	return &AlertHandler{BaseHandler: base, alerts: svc}
}

// List handles GET /alerts
func (h *AlertHandler) List(c *gin.Context) {
	var q dto.AlertQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := alerts.Filter{Active: q.Active, Unread: q.Unread, Limit: q.Limit, Offset: q.Offset}
	if q.ProductID != "" {
		productID, err := id.Parse(q.ProductID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return
		}
		filter.ProductID = &productID
	}
	for _, t := range q.Types {
		filter.Types = append(filter.Types, alerts.Type(t))
	}

	items, total, err := h.alerts.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, total, q.PageQuery))
}

// Get handles GET /alerts/:id
func (h *AlertHandler) Get(c *gin.Context) {
	alertID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	a, err := h.alerts.Get(c.Request.Context(), alertID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// MarkRead handles PATCH /alerts/:id/read
func (h *AlertHandler) MarkRead(c *gin.Context) {
	alertID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	a, err := h.alerts.MarkRead(c.Request.Context(), alertID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// Evaluate handles POST /products/:id/alerts/evaluate
func (h *AlertHandler) Evaluate(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	res, err := h.alerts.EvaluateAndReconcile(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Sweep handles POST /alerts/sweep
func (h *AlertHandler) Sweep(c *gin.Context) {
	res, err := h.alerts.RunDailySweep(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
