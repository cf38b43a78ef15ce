package laborder

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
	"github.com/hospitrack/hospitrack/internal/platform/middleware"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	lab := auth.RequireRole(auth.RoleLabTech)

	api.POST("/lab/create_order", h.CreateOrder, lab)
	api.GET("/lab/orders", h.ListOrders, lab)
	api.GET("/lab/orders/:lab_order_id", h.GetOrder, lab)
	api.POST("/lab/orders/:lab_order_id/complete", h.CompleteOrder, lab)
	api.GET("/patient/reports", h.ListPatientReports, auth.RequireRole(auth.RolePatient))
}

type createOrderRequest struct {
	PatientID     int64  `json:"patient_id"`
	HospitalID    int64  `json:"hospital_id"`
	AppointmentNo string `json:"appointment_no"`
	DoctorName    string `json:"doctor_name"`
	ReportType    string `json:"report_type"`
	LabName       string `json:"lab_name"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == 0 && req.AppointmentNo == "" {
		return middleware.NewError(http.StatusBadRequest, "invalid_request", "Patient ID required")
	}
	o, err := h.svc.Create(c.Request().Context(), CreateRequest{
		PatientID:     req.PatientID,
		HospitalID:    req.HospitalID,
		AppointmentNo: req.AppointmentNo,
		DoctorName:    req.DoctorName,
		ReportType:    req.ReportType,
		LabName:       req.LabName,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Lab Order Created",
		"lab_order_id": o.LabOrderID,
		"order":        o,
	})
}

func (h *Handler) ListOrders(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) GetOrder(c echo.Context) error {
	v, err := h.svc.Get(c.Request().Context(), c.Param("lab_order_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type completeOrderRequest struct {
	AppointmentNo string `json:"appointment_no"`
}

func (h *Handler) CompleteOrder(c echo.Context) error {
	var req completeOrderRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	o, err := h.svc.Complete(c.Request().Context(), c.Param("lab_order_id"), req.AppointmentNo)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Lab order completed",
		"order":   o,
	})
}

func (h *Handler) ListPatientReports(c echo.Context) error {
	var requested int64
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		requested = id
	}
	pid, ok := auth.PatientScope(c.Request().Context(), requested)
	if !ok {
		if requested == 0 {
			return middleware.NewError(http.StatusBadRequest, "invalid_request", "patient_id is required")
		}
		return echo.NewHTTPError(http.StatusForbidden, "cannot read another patient's reports")
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return middleware.NewError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrAlreadyCompleted):
		return middleware.NewError(http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, ErrInvalidOrder):
		return middleware.NewError(http.StatusBadRequest, "invalid_request", err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
