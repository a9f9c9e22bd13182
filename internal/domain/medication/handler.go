package medication

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
	api.GET("/medicines/search", h.SearchMedicineNames)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/medicines", h.AddMedicine)
	doctors.POST("/prescriptions", h.CreatePrescription)
	doctors.GET("/prescriptions", h.ListPrescriptions)

	admin := api.Group("", auth.RequireAdmin())
	admin.GET("/medicines", h.ListMedicines)
	admin.GET("/medicines/:id", h.GetMedicine)
	admin.PUT("/medicines/:id", h.UpdateMedicine)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMedicineExists):
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

// -- Medicines --

func (h *Handler) AddMedicine(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var m Medicine
	if err := validation.Bind(c, &m); err != nil {
		return err
	}
	if err := h.svc.AddMedicine(c.Request().Context(), p, &m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch MedicinePatch
	if err := validation.Bind(c, &patch); err != nil {
		return err
	}
	m, err := h.svc.UpdateMedicine(c.Request().Context(), id, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicines(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchMedicineNames(c echo.Context) error {
	names, err := h.svc.SearchMedicineNames(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"names": names})
}

// -- Prescriptions --

func (h *Handler) CreatePrescription(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var in PrescriptionInput
	if err := validation.Bind(c, &in); err != nil {
		return err
	}
	rx, err := h.svc.CreatePrescription(c.Request().Context(), p, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, prescriptionView{Prescription: rx, Total: rx.Total()})
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	views := make([]prescriptionView, 0, len(items))
	for _, rx := range items {
		views = append(views, prescriptionView{Prescription: rx, Total: rx.Total()})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}
