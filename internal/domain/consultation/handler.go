package consultation

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hisledger/internal/platform/auth"
	"github.com/ehr/hisledger/internal/platform/httpx"
	"github.com/ehr/hisledger/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consultations")
	physician := auth.RequireRole(auth.RolePhysician)

	g.GET("/:id", h.Get, auth.RequireRole(auth.RolePhysician, auth.RoleBilling))
	g.POST("/:id/start", h.Start, physician)
	g.POST("/:id/complete", h.Complete, physician)
	g.POST("/:id/reopen", h.Reopen, auth.RequireRole(auth.RoleAdmin))
	g.GET("/:id/summary", h.Summary, auth.RequireRole(auth.RolePhysician, auth.RoleBilling))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Start(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.Start(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.Complete(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Reopen(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.Reopen(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}
