package catalogue

import (
	"net/http"

	"github.com/labstack/echo/v4"

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
	api.GET("/catalogue/services", h.ListServices)
	api.GET("/catalogue/services/:id", h.GetService)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.List(c.Request().Context(), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, entry)
}
