package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/storage"
)

// Handlers bundles the procurement HTTP surface.
type Handlers struct {
	Bucket      *BucketHandler
	Order       *OrderHandler
	Receipt     *ReceiptHandler
	Reservation *ReservationHandler
	Outbox      *OutboxHandler
}

func NewHandlers(
	bucketSvc *service.BucketService,
	orderSvc *service.OrderService,
	receiptSvc *service.ReceiptService,
	reservationSvc *service.ReservationService,
	dispatcher *outbox.Dispatcher,
	docs storage.DocumentStore,
	outboxBatchSize int,
) *Handlers {
	return &Handlers{
		Bucket:      NewBucketHandler(bucketSvc),
		Order:       NewOrderHandler(orderSvc, docs),
		Receipt:     NewReceiptHandler(receiptSvc),
		Reservation: NewReservationHandler(reservationSvc),
		Outbox:      NewOutboxHandler(dispatcher, outboxBatchSize),
	}
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Fail maps a service error onto the response envelope. User-facing
// messages pass through untranslated.
func Fail(c *gin.Context, err error) {
	if errors.Is(err, outbox.ErrBusy) {
		Error(c, 40900, "Der Versand läuft bereits. Bitte kurz warten.")
		return
	}
	if errors.Is(err, outbox.ErrNotFound) {
		NotFound(c, "Outbox-Eintrag nicht gefunden.")
		return
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case service.KindUnauthorized:
			Error(c, 40100, svcErr.Message)
		case service.KindValidation:
			Error(c, 40000, svcErr.Message)
		case service.KindNotFound:
			Error(c, 40400, svcErr.Message)
		default:
			Error(c, 50000, svcErr.Message)
		}
		return
	}

	InternalError(c, err.Error())
}

// ActorFrom builds the service actor from the authenticated request.
func ActorFrom(c *gin.Context) service.Actor {
	return service.Actor{
		UserID:    c.GetString("user_id"),
		CompanyID: c.GetString("company_id"),
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
