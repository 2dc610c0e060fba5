package inventory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hisledger/internal/platform/auth"
	"github.com/ehr/hisledger/internal/platform/httpx"
	"github.com/ehr/hisledger/pkg/apperr"
	"github.com/ehr/hisledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/inventory", auth.RequireRole(auth.RolePharmacist))
	g.GET("/drugs/:id", h.GetDrug)
	g.GET("/drugs/:id/movements", h.ListMovements)
	g.GET("/low-stock", h.ListLowStock)
}

func (h *Handler) GetDrug(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDrug(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMovements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListLowStock(c echo.Context) error {
	drugs, err := h.svc.ListLowStock(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, drugs)
}
