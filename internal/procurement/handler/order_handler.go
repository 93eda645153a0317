package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/storage"
)

// OrderHandler exposes the supplier-order mutation gateway.
type OrderHandler struct {
	svc  *service.OrderService
	docs storage.DocumentStore
}

func NewOrderHandler(svc *service.OrderService, docs storage.DocumentStore) *OrderHandler {
	return &OrderHandler{svc: svc, docs: docs}
}

// ListOrders returns all supplier orders of the company.
// GET /api/v1/procurement/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.svc.ListOrders(c.Request.Context(), ActorFrom(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{
		"items": orders,
		"total": len(orders),
	})
}

// GetOrder returns one supplier order with its positions.
// GET /api/v1/procurement/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), ActorFrom(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

type ensureOrderRequest struct {
	ProjectID  string `json:"project_id" binding:"required"`
	SupplierID string `json:"supplier_id" binding:"required"`
}

// EnsureOrder creates or refreshes the draft order for a supplier.
// POST /api/v1/procurement/orders/ensure
func (h *OrderHandler) EnsureOrder(c *gin.Context) {
	var req ensureOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	order, err := h.svc.EnsureOrder(c.Request.Context(), ActorFrom(c), req.ProjectID, req.SupplierID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

type sendOrderRequest struct {
	RecipientOverride string `json:"recipient_override"`
	IdempotencyKey    string `json:"idempotency_key"`
}

// SendOrder dispatches the order email through the outbox.
// POST /api/v1/procurement/orders/:id/send
func (h *OrderHandler) SendOrder(c *gin.Context) {
	var req sendOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	result, err := h.svc.SendOrder(c.Request.Context(), ActorFrom(c), c.Param("id"), req.RecipientOverride, req.IdempotencyKey)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

type markOrderedRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Note           string `json:"note"`
}

// MarkOrdered records an order placed outside the system (phone, fax,
// supplier portal). No email is sent.
// POST /api/v1/procurement/orders/:id/mark-ordered
func (h *OrderHandler) MarkOrdered(c *gin.Context) {
	var req markOrderedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	result, err := h.svc.MarkExternallyOrdered(c.Request.Context(), ActorFrom(c), c.Param("id"), req.IdempotencyKey, req.Note)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

// CaptureAB records the supplier's order confirmation.
// POST /api/v1/procurement/orders/:id/ab
func (h *OrderHandler) CaptureAB(c *gin.Context) {
	var input service.CaptureABInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	order, err := h.svc.CaptureAB(c.Request.Context(), ActorFrom(c), c.Param("id"), input)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// UploadABDocument stores the AB PDF and returns its object key for a
// subsequent CaptureAB call.
// POST /api/v1/procurement/orders/:id/ab/document
func (h *OrderHandler) UploadABDocument(c *gin.Context) {
	if h.docs == nil {
		InternalError(c, "Dokumentenspeicher ist nicht konfiguriert.")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "Datei fehlt: "+err.Error())
		return
	}

	src, err := file.Open()
	if err != nil {
		InternalError(c, "Datei konnte nicht gelesen werden.")
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	objectKey, err := h.docs.Put(c.Request.Context(), file.Filename, contentType, src, file.Size)
	if err != nil {
		InternalError(c, "Dokument konnte nicht gespeichert werden.")
		return
	}

	Created(c, gin.H{"document_key": objectKey})
}

type linkDeliveryNoteRequest struct {
	DeliveryNoteNo string `json:"delivery_note_no" binding:"required"`
}

// LinkDeliveryNote attaches a delivery note number to the order.
// POST /api/v1/procurement/orders/:id/delivery-note
func (h *OrderHandler) LinkDeliveryNote(c *gin.Context) {
	var req linkDeliveryNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	order, err := h.svc.LinkDeliveryNote(c.Request.Context(), ActorFrom(c), c.Param("id"), req.DeliveryNoteNo)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

type cancelItemsRequest struct {
	Amounts map[string]float64 `json:"amounts" binding:"required"`
}

// CancelItems cancels partial quantities on order positions. The whole
// request is validated against remaining quantities before any write.
// POST /api/v1/procurement/orders/:id/cancel-items
func (h *OrderHandler) CancelItems(c *gin.Context) {
	var req cancelItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	order, err := h.svc.CancelOrderItems(c.Request.Context(), ActorFrom(c), c.Param("id"), req.Amounts)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// CancelOrder cancels the whole order. Cancelling twice is a no-op.
// POST /api/v1/procurement/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := h.svc.CancelOrder(c.Request.Context(), ActorFrom(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}
