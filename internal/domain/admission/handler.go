package admission

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	clinical.GET("/rooms", h.ListRooms)
	clinical.GET("/rooms/:id", h.GetRoom)
	clinical.POST("/admissions", h.Admit)
	clinical.GET("/admissions", h.ListAdmissions)
	clinical.GET("/admissions/:id", h.GetAdmission)
	clinical.POST("/discharge-requests", h.RequestDischarge)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/rooms", h.CreateRoom)
	admin.GET("/discharge-requests", h.ListDischargeRequests)
	admin.POST("/admissions/:id/discharge", h.FinalizeDischarge)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid),
		errors.Is(err, ErrChargeTooLow),
		errors.Is(err, ErrAlreadyDischarged):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRoomExists),
		errors.Is(err, ErrRoomOccupied),
		errors.Is(err, ErrDischargeAlreadyRequested):
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

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Rooms --

func (h *Handler) CreateRoom(c echo.Context) error {
	var r Room
	if err := validation.Bind(c, &r); err != nil {
		return err
	}
	if err := h.svc.CreateRoom(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListRooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRooms(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// -- Admissions --

type admitRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	RoomID    uuid.UUID `json:"room_id" validate:"required"`
}

func (h *Handler) Admit(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req admitRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Admit(c.Request().Context(), p, req.PatientID, req.RoomID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// ListAdmissions accepts ?active=true|false.
func (h *Handler) ListAdmissions(c echo.Context) error {
	var active *bool
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be true or false")
		}
		active = &b
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdmissions(c.Request().Context(), active, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAdmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Discharge --

type dischargeRequestBody struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
}

func (h *Handler) RequestDischarge(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dischargeRequestBody
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.RequestDischarge(c.Request().Context(), p, req.PatientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// ListDischargeRequests accepts ?status=pending|completed.
func (h *Handler) ListDischargeRequests(c echo.Context) error {
	var status *DischargeStatus
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseDischargeStatus(v)
		if err != nil {
			return httpError(err)
		}
		status = &st
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDischargeRequests(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type finalizeRequest struct {
	Charge float64 `json:"charge"`
}

func (h *Handler) FinalizeDischarge(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req finalizeRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.FinalizeDischarge(c.Request().Context(), p, id, req.Charge)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}
