package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
)

// ReceiptHandler books goods receipts.
type ReceiptHandler struct {
	svc *service.ReceiptService
}

func NewReceiptHandler(svc *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{svc: svc}
}

// BookReceipt books received quantities against an order. Submitting
// the identical payload twice returns the first booking.
// POST /api/v1/procurement/receipts
func (h *ReceiptHandler) BookReceipt(c *gin.Context) {
	var input service.BookReceiptInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	receipt, err := h.svc.BookGoodsReceipt(c.Request.Context(), ActorFrom(c), input)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, receipt)
}

// ListProjectReceipts returns all receipts booked for a project.
// GET /api/v1/procurement/projects/:id/receipts
func (h *ReceiptHandler) ListProjectReceipts(c *gin.Context) {
	receipts, err := h.svc.ReceiptsForProject(c.Request.Context(), ActorFrom(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{
		"items": receipts,
		"total": len(receipts),
	})
}
