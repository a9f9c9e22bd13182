package nursing

import (
	"errors"
	"net/http"

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
	api.GET("/duties", h.ListDuties)
	api.GET("/duties/search", h.SearchDutyNames)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/duties", h.AssignDuty)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrStaffUnavailable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

type assignRequest struct {
	StaffID   uuid.UUID `json:"staff_id" validate:"required"`
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
}

func (h *Handler) AssignDuty(c echo.Context) error {
	var req assignRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.AssignDuty(c.Request().Context(), req.StaffID, req.PatientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDuties(c echo.Context) error {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDuties(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchDutyNames(c echo.Context) error {
	names, err := h.svc.SearchDutyNames(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"usernames": names})
}
