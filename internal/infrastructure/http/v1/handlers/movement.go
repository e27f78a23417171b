package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler exposes the movement ledger.
type MovementHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewMovementHandler creates a movement handler.
func NewMovementHandler(base *BaseHandler, svc *ledger.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, ledger: svc}
}

// Apply handles POST /products/:id/movements
func (h *MovementHandler) Apply(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ApplyMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.ApplyMovement(c.Request.Context(), req.ToInput(productID, h.UserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// History handles GET /products/:id/movements
func (h *MovementHandler) History(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := q.ToFilter(productID)
	items, total, err := h.ledger.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, total, q.PageQuery))
}

// Conservation handles GET /products/:id/conservation
func (h *MovementHandler) Conservation(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	report, err := h.ledger.VerifyConservation(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Reverse handles POST /movements/:id/reverse
func (h *MovementHandler) Reverse(c *gin.Context) {
	movementID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReverseSaleRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	res, err := h.ledger.ReverseSale(c.Request.Context(), movementID, h.UserID(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
