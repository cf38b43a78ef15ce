package reservation

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
	"github.com/hospitrack/hospitrack/internal/platform/middleware"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	coord  *Coordinator
	ledger *Ledger
}

func NewHandler(coord *Coordinator, ledger *Ledger) *Handler {
	return &Handler{coord: coord, ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := auth.RequireRole(auth.RolePatient)
	staff := auth.RequireRole(auth.RoleHospitalStaff)

	api.POST("/patient/reserve_bed", h.ReserveBed, patient)
	api.GET("/patient/reservations", h.ListPatientReservations, patient)

	api.GET("/hospital/:id/reservations", h.ListHospitalReservations, staff)
	api.GET("/hospital/:id/reservations/export", h.ExportHospitalReservations, staff)
	api.PATCH("/hospital/reservations/:id", h.UpdateStatus, staff)
}

func (h *Handler) ReserveBed(c echo.Context) error {
	var req ReserveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pid, err := patientFor(c, req.PatientID)
	if err != nil {
		return err
	}
	req.PatientID = pid

	r, err := h.coord.TryReserve(c.Request().Context(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Bed reserved successfully for 30 minutes!",
		"reservation": r,
	})
}

func (h *Handler) ListPatientReservations(c echo.Context) error {
	requested, err := optionalID(c.QueryParam("patient_id"))
	if err != nil {
		return err
	}
	pid, err := patientFor(c, requested)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.ledger.ListByPatient(c.Request().Context(), pid, p)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, p))
}

func (h *Handler) ListHospitalReservations(c echo.Context) error {
	hid, err := h.hospitalParam(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.ledger.ListByHospital(c.Request().Context(), hid, p)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, p))
}

func (h *Handler) ExportHospitalReservations(c echo.Context) error {
	hid, err := h.hospitalParam(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.ledger.Export(c.Request().Context(), hid, &buf); err != nil {
		return mapError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="hospital-%d-reservations.xlsx"`, hid))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !ValidStatus(req.Status) {
		return middleware.NewError(http.StatusBadRequest, "invalid_status", fmt.Sprintf("unknown status %q", req.Status))
	}

	ctx := c.Request().Context()
	cur, err := h.ledger.Get(ctx, id)
	if err != nil {
		return mapError(c, err)
	}
	if !auth.CanManageHospital(ctx, cur.HospitalID) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}

	r, err := h.coord.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Reservation status updated",
		"reservation": r,
	})
}

func (h *Handler) hospitalParam(c echo.Context) (int64, error) {
	hid, err := parseID(c.Param("id"))
	if err != nil {
		return 0, err
	}
	if !auth.CanManageHospital(c.Request().Context(), hid) {
		return 0, echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}
	return hid, nil
}

func patientFor(c echo.Context, requested int64) (int64, error) {
	if pid, ok := auth.PatientScope(c.Request().Context(), requested); ok {
		return pid, nil
	}
	if requested == 0 {
		return 0, middleware.NewError(http.StatusBadRequest, "invalid_request", "patient_id is required")
	}
	return 0, echo.NewHTTPError(http.StatusForbidden, "cannot act for another patient")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func optionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return parseID(raw)
}

func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNoCapacity):
		return middleware.NewError(http.StatusBadRequest, "no_capacity", "Bed no longer available")
	case errors.Is(err, ErrNotFound):
		return middleware.NewError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrAlreadyReleased):
		return middleware.NewError(http.StatusConflict, "already_released", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return middleware.NewError(http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		return middleware.NewError(http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return middleware.NewError(http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrContention):
		c.Response().Header().Set("Retry-After", "1")
		return middleware.NewError(http.StatusServiceUnavailable, "contention", "inventory busy, retry shortly")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func nonNil(items []*View) []*View {
	if items == nil {
		return []*View{}
	}
	return items
}
