package appointment

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
	patient := auth.RequireRole(auth.RolePatient)
	staff := auth.RequireRole(auth.RoleHospitalStaff)

	api.GET("/patient/appointments", h.ListPatientAppointments, patient)
	api.POST("/patient/appointments", h.Book, patient)
	api.GET("/hospital/:id/appointments", h.ListHospitalAppointments, staff)
	api.GET("/hospital/:id/analytics", h.Analytics, staff)
	api.PATCH("/hospital/appointments/:id", h.UpdateStatus, staff)
	api.GET("/appointments/by-number/:no", h.GetByNumber, auth.RequireRole(auth.RoleLabTech, auth.RoleHospitalStaff))
}

type bookRequest struct {
	PatientID       int64  `json:"patient_id"`
	HospitalID      int64  `json:"hospital_id"`
	DoctorName      string `json:"doctor_name"`
	Date            string `json:"date"`
	AppointmentDate string `json:"appointment_date"`
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pid, err := patientFor(c, req.PatientID)
	if err != nil {
		return err
	}
	date := req.AppointmentDate
	if date == "" {
		date = req.Date
	}

	a, err := h.svc.Book(c.Request().Context(), BookRequest{
		PatientID: pid, HospitalID: req.HospitalID, DoctorName: req.DoctorName, Date: date,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Appointment booked successfully",
		"appointment": a,
	})
}

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	var requested int64
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return err
		}
		requested = id
	}
	pid, err := patientFor(c, requested)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) ListHospitalAppointments(c echo.Context) error {
	hid, err := hospitalParam(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListByHospital(c.Request().Context(), hid, p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) Analytics(c echo.Context) error {
	hid, err := hospitalParam(c)
	if err != nil {
		return err
	}
	n, err := h.svc.PatientsServed(c.Request().Context(), hid)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"hospital_id":     hid,
		"patients_served": n,
		"peak_hours":      PeakHours,
	})
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
	ctx := c.Request().Context()
	cur, err := h.svc.Get(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if !auth.CanManageHospital(ctx, cur.HospitalID) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}
	a, err := h.svc.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Appointment status updated",
		"appointment": a,
	})
}

func (h *Handler) GetByNumber(c echo.Context) error {
	v, err := h.svc.GetByAppointmentNo(c.Request().Context(), c.Param("no"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func hospitalParam(c echo.Context) (int64, error) {
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

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return middleware.NewError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		return middleware.NewError(http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, ErrInvalidAppointment):
		return middleware.NewError(http.StatusBadRequest, "invalid_request", err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
