package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
)

// OutboxHandler drives the email outbox sweep.
type OutboxHandler struct {
	dispatcher *outbox.Dispatcher
	batchSize  int
}

func NewOutboxHandler(dispatcher *outbox.Dispatcher, batchSize int) *OutboxHandler {
	return &OutboxHandler{dispatcher: dispatcher, batchSize: batchSize}
}

// ProcessBatch re-drives queued, failed and stale entries.
// POST /api/v1/procurement/outbox/process?limit=20
func (h *OutboxHandler) ProcessBatch(c *gin.Context) {
	limit := queryInt(c, "limit", h.batchSize)
	stats, err := h.dispatcher.ProcessBatch(c.Request.Context(), limit)
	if err != nil {
		InternalError(c, "Outbox-Verarbeitung fehlgeschlagen: "+err.Error())
		return
	}
	Success(c, stats)
}

// Redeliver re-drives one specific entry.
// POST /api/v1/procurement/outbox/:id/redeliver
func (h *OutboxHandler) Redeliver(c *gin.Context) {
	result, err := h.dispatcher.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}
