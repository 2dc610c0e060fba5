package billing

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/internal/platform/auth"
	"github.com/ehr/hisledger/internal/platform/httpx"
	"github.com/ehr/hisledger/internal/platform/validate"
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
	g := api.Group("/billing")

	post := g.Group("/:encounterId/charges", auth.RequireRole(auth.RoleBilling, auth.RolePhysician))
	post.POST("/consultation", h.PostConsultation)
	post.POST("/lab-test", h.PostLabTest)
	post.POST("/procedure", h.PostProcedure)
	post.POST("/imaging", h.PostImaging)
	post.POST("/medication", h.PostMedication)
	post.POST("/bed", h.PostBed)

	desk := g.Group("", auth.RequireRole(auth.RoleBilling))
	desk.GET("/:encounterId/summary", h.GetSummary)
	desk.GET("/:encounterId/items", h.ListItems)
	desk.POST("/:encounterId/payments", h.RecordPayment)
	desk.POST("/:encounterId/discount", h.ApplyDiscount)
	desk.POST("/:encounterId/close", h.CloseAccount)
	desk.POST("/items/:id/cancel", h.CancelItem)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func actor(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) PostConsultation(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req ConsultationCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostConsultationCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) PostLabTest(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req LabTestCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostLabTestCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) PostProcedure(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req ProcedureCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostProcedureCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) PostImaging(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req ImagingCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostImagingCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) PostMedication(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req MedicationCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostMedicationCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) PostBed(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req BedCharge
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	req.EncounterID, req.ActorID = encID, actor(c)

	item, err := h.svc.PostBedCharge(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetSummary(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	sum, err := h.svc.GetBillingSummary(c.Request().Context(), encID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListItems(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListItems(c.Request().Context(), encID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	acct, err := h.svc.RecordPayment(c.Request().Context(), encID, req.Amount, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) ApplyDiscount(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	acct, err := h.svc.ApplyDiscount(c.Request().Context(), encID, req.Amount, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) CloseAccount(c echo.Context) error {
	encID, err := httpx.ParamID(c, "encounterId")
	if err != nil {
		return err
	}
	acct, err := h.svc.CloseAccount(c.Request().Context(), encID, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) CancelItem(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	item, err := h.svc.CancelItem(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, item)
}
