package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	UserID         string   `json:"user_id"`
	FlightID       int64    `json:"flight_id"`
	SeatNumbers    []string `json:"seat_numbers"`
	SeatClass      string   `json:"seat_class"`
	PassengerEmail string   `json:"passenger_email"`
}

type completeBookingRequest struct {
	UserID               string `json:"user_id"`
	PaymentTransactionID string `json:"payment_transaction_id"`
}

type cancelBookingRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type bookingResponse struct {
	BookingReference string   `json:"booking_reference"`
	Status           string   `json:"status"`
	PaymentStatus    string   `json:"payment_status"`
	FlightID         int64    `json:"flight_id"`
	SeatNumbers      []string `json:"seat_numbers"`
	SeatClass        string   `json:"seat_class"`
	TotalCostCents   int64    `json:"total_cost_cents"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:reference", h.get)
	router.POST("/:reference/complete", h.complete)
	router.POST("/:reference/extend", h.extend)
	router.DELETE("/:reference", h.cancel)
	router.GET("/availability/:flightId", h.availability)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		UserID:         req.UserID,
		FlightID:       req.FlightID,
		SeatNumbers:    req.SeatNumbers,
		SeatClass:      domain.SeatClass(req.SeatClass),
		PassengerEmail: req.PassengerEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("reference"), c.Query("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) complete(c *gin.Context) {
	var req completeBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CompleteBooking(c.Request.Context(), c.Param("reference"), req.UserID, req.PaymentTransactionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) extend(c *gin.Context) {
	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.ExtendBooking(c.Request.Context(), c.Param("reference"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CancelBooking(c.Request.Context(), c.Param("reference"), req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) availability(c *gin.Context) {
	flightID, err := strconv.ParseInt(c.Param("flightId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flight id"})
		return
	}
	seats := c.QueryArray("seat")
	if len(seats) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one seat query parameter is required"})
		return
	}

	locked, err := h.service.CheckSeatAvailability(c.Request.Context(), flightID, seats)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flight_id": flightID, "locked": locked})
}

// respondError surfaces business failures to the caller and hides
// infrastructure detail behind a generic message.
func respondError(c *gin.Context, err error) {
	if domain.ClassOf(err) == domain.ErrorClassBusiness {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrFlightNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrUnauthorized):
			status = http.StatusForbidden
		case errors.Is(err, domain.ErrSeatsUnavailable), errors.Is(err, domain.ErrInsufficientSeats):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to complete booking"})
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		BookingReference: b.BookingReference,
		Status:           string(b.Status),
		PaymentStatus:    string(b.PaymentStatus),
		FlightID:         b.FlightID,
		SeatNumbers:      b.SeatNumbers,
		SeatClass:        string(b.SeatClass),
		TotalCostCents:   b.TotalCostCents,
	}
	if b.ExpiresAt != nil {
		resp.ExpiresAt = b.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}
