package laborder

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hisledger/internal/platform/auth"
	"github.com/ehr/hisledger/internal/platform/httpx"
	"github.com/ehr/hisledger/internal/platform/validate"
	"github.com/ehr/hisledger/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	physician := auth.RequireRole(auth.RolePhysician)
	clinical := auth.RequireRole(auth.RolePhysician, auth.RoleLab)

	api.POST("/lab-orders", h.Create, physician)
	api.GET("/lab-orders/:id", h.Get, clinical)
	api.PATCH("/lab-orders/:id/priority", h.UpdatePriority, clinical)
	api.POST("/lab-orders/:id/submit", h.Submit, clinical)
	api.DELETE("/lab-orders/:id", h.Delete, physician)
	api.GET("/consultations/:id/lab-orders", h.ListByConsultation, clinical)
}

type priorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=urgent fast normal"`
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := validate.BindAndValidate(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Create(c.Request().Context(), in, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UpdatePriority(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req priorityRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	o, err := h.svc.UpdatePriority(c.Request().Context(), id, req.Priority, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Submit(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context())); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByConsultation(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByConsultation(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}
