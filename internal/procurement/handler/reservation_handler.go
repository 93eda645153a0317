package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
)

// ReservationHandler manages installation reservations.
type ReservationHandler struct {
	svc *service.ReservationService
}

func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

type requestReservationRequest struct {
	InstallerCompany string `json:"installer_company" binding:"required"`
}

// RequestReservation asks the installer for a slot.
// POST /api/v1/procurement/projects/:id/reservation/request
func (h *ReservationHandler) RequestReservation(c *gin.Context) {
	var req requestReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	reservation, err := h.svc.RequestReservation(c.Request.Context(), ActorFrom(c), c.Param("id"), req.InstallerCompany)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, reservation)
}

type confirmReservationRequest struct {
	ConfirmationDate time.Time `json:"confirmation_date" binding:"required"`
}

// ConfirmReservation records the installer's confirmation.
// POST /api/v1/procurement/projects/:id/reservation/confirm
func (h *ReservationHandler) ConfirmReservation(c *gin.Context) {
	var req confirmReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Ungültige Anfrage: "+err.Error())
		return
	}

	reservation, err := h.svc.ConfirmReservation(c.Request.Context(), ActorFrom(c), c.Param("id"), req.ConfirmationDate)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, reservation)
}
