package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/purchasing"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// PurchaseOrderHandler exposes purchase order placement and receipt.
type PurchaseOrderHandler struct {
	*BaseHandler
	orders *purchasing.Service
}

// NewPurchaseOrderHandler creates a purchase order handler.
func NewPurchaseOrderHandler(base *BaseHandler, svc *purchasing.Service) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{BaseHandler: base, orders: svc}
}

// Create handles POST /purchase-orders
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	order, err := h.orders.Create(c.Request.Context(), req.ToInput(h.UserID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, order)
}

// Get handles GET /purchase-orders/:id
func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// List handles GET /purchase-orders
func (h *PurchaseOrderHandler) List(c *gin.Context) {
	var q dto.PurchaseOrderQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := purchasing.ListFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := purchasing.Status(q.Status)
		switch status {
		case purchasing.StatusOrdered, purchasing.StatusPartiallyReceived, purchasing.StatusReceived:
			filter.Status = &status
		default:
			h.Error(c, apperror.NewValidation("unknown status").WithDetail("status", q.Status))
			return
		}
	}
	if q.SupplierID != "" {
		supplierID, err := id.Parse(q.SupplierID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid supplierId format"))
			return
		}
		filter.SupplierID = &supplierID
	}

	orders, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(orders, total, q.PageQuery))
}

// Receive handles POST /purchase-orders/:id/receive
func (h *PurchaseOrderHandler) Receive(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	summary, err := h.orders.Receive(c.Request.Context(), orderID, req.ToLines(), h.UserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}
