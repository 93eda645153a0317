package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
)

// BucketHandler serves the workflow board.
type BucketHandler struct {
	svc *service.BucketService
}

func NewBucketHandler(svc *service.BucketService) *BucketHandler {
	return &BucketHandler{svc: svc}
}

// ListBuckets returns the classified workflow board.
// GET /api/v1/procurement/buckets?queue=zu_bestellen
func (h *BucketHandler) ListBuckets(c *gin.Context) {
	buckets, err := h.svc.ListBuckets(c.Request.Context(), ActorFrom(c))
	if err != nil {
		Fail(c, err)
		return
	}

	if raw := c.Query("queue"); raw != "" {
		queue, ok := workflow.QueueFromParam(raw)
		if !ok {
			BadRequest(c, "Unbekannte Warteschlange: "+raw)
			return
		}
		filtered := buckets[:0]
		for _, b := range buckets {
			if b.Queue == queue {
				filtered = append(filtered, b)
			}
		}
		buckets = filtered
	}

	Success(c, gin.H{
		"buckets": buckets,
		"total":   len(buckets),
	})
}

// MaterialSnapshots returns the material risk board.
// GET /api/v1/procurement/material-risk?horizon_days=14
func (h *BucketHandler) MaterialSnapshots(c *gin.Context) {
	horizon := queryInt(c, "horizon_days", 0)
	snapshots, err := h.svc.MaterialSnapshots(c.Request.Context(), ActorFrom(c), horizon)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{
		"projects": snapshots,
		"total":    len(snapshots),
	})
}

// ExportBuckets streams the board as an xlsx download.
// GET /api/v1/procurement/buckets/export?queue=brennt
func (h *BucketHandler) ExportBuckets(c *gin.Context) {
	var queue *workflow.Queue
	if raw := c.Query("queue"); raw != "" {
		q, ok := workflow.QueueFromParam(raw)
		if !ok {
			BadRequest(c, "Unbekannte Warteschlange: "+raw)
			return
		}
		queue = &q
	}

	f, fileName, err := h.svc.ExportBuckets(c.Request.Context(), ActorFrom(c), queue)
	if err != nil {
		Fail(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
