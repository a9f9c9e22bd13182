package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts slot and booking endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/slots", h.AvailableSlots)
	api.GET("/bookings/:id", h.GetBooking)
	api.DELETE("/bookings/:id", h.CancelBooking)

	patients := api.Group("", auth.RequireRole(auth.RolePatient))
	patients.POST("/bookings", h.BookSlot)
	patients.GET("/bookings/mine", h.MyBookings)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	clinical.GET("/bookings/today", h.TodayAppointments)
	clinical.GET("/bookings", h.ListStaffBookings)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid),
		errors.Is(err, ErrStaffUnavailable),
		errors.Is(err, ErrDateInPast),
		errors.Is(err, ErrSlotOutOfHours),
		errors.Is(err, ErrSlotInPast):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotAlreadyBooked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

func parseUUID(v, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Slots --

// AvailableSlots answers GET /slots?staff_id=&date=. The date defaults to
// today.
func (h *Handler) AvailableSlots(c echo.Context) error {
	staffID, err := parseUUID(c.QueryParam("staff_id"), "staff_id")
	if err != nil {
		return err
	}
	date := clock.Today(h.svc.clock.Now())
	if v := c.QueryParam("date"); v != "" {
		if date, err = h.svc.ParseDate(v); err != nil {
			return httpError(err)
		}
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), staffID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		StaffID: staffID,
		Date:    date.Format(clock.DateLayout),
		Slots:   slots,
	})
}

// -- Bookings --

type bookRequest struct {
	StaffID   uuid.UUID  `json:"staff_id" validate:"required"`
	Date      string     `json:"date" validate:"required"`
	Slot      string     `json:"slot" validate:"required"`
	Reason    string     `json:"reason" validate:"max=500"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
}

// BookSlot books for the calling patient. Admins may name the patient.
func (h *Handler) BookSlot(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	date, err := h.svc.ParseDate(req.Date)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	var patientID uuid.UUID
	if p.IsAdmin && req.PatientID != nil {
		patientID = *req.PatientID
	} else if patientID, err = h.svc.PatientIDForUser(ctx, p.UserID); err != nil {
		return httpError(err)
	}

	b, err := h.svc.BookSlot(ctx, req.StaffID, date, req.Slot, patientID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) MyBookings(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	patientID, err := h.svc.PatientIDForUser(ctx, p.UserID)
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBookingsByPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) TodayAppointments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	items, err := h.svc.TodayAppointments(c.Request().Context(), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListStaffBookings answers GET /bookings?staff_id=&date=. Without staff_id
// the caller's own staff record is used.
func (h *Handler) ListStaffBookings(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	staffID := uuid.Nil
	if v := c.QueryParam("staff_id"); v != "" {
		if staffID, err = parseUUID(v, "staff_id"); err != nil {
			return err
		}
	}
	var date *time.Time
	if v := c.QueryParam("date"); v != "" {
		d, err := h.svc.ParseDate(v)
		if err != nil {
			return httpError(err)
		}
		date = &d
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBookingsByStaff(c.Request().Context(), p, staffID, date, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBooking(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	b, err := h.svc.GetBookingFor(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	if err := h.svc.CancelBooking(c.Request().Context(), p, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
