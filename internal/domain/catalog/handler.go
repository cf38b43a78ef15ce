package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
	"github.com/hospitrack/hospitrack/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/hospitals", h.ListHospitals)
	api.GET("/hospitals/search", h.SearchHospitals)
	api.GET("/hospital/:id/details", h.GetHospitalDetails)
	api.GET("/hospital/:id/doctors_list", h.ListDoctors)
	api.GET("/patient/search_beds", h.SearchBeds)

	api.POST("/admin/hospitals", h.CreateHospital, auth.RequireRole(auth.RoleAdmin))
	api.POST("/hospital/beds", h.UpsertBed, auth.RequireRole(auth.RoleHospitalStaff))
	api.DELETE("/hospital/beds/:id", h.DeleteBed, auth.RequireRole(auth.RoleHospitalStaff))
	api.POST("/hospital/doctors", h.AddDoctor, auth.RequireRole(auth.RoleHospitalStaff))
}

func (h *Handler) ListHospitals(c echo.Context) error {
	items, err := h.svc.ListHospitals(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) SearchHospitals(c echo.Context) error {
	items, err := h.svc.SearchHospitals(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

type createHospitalRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Contact  string `json:"contact"`
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var req createHospitalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	hosp := &Hospital{Name: req.Name, Location: req.Location, Contact: req.Contact}
	if err := h.svc.CreateHospital(c.Request().Context(), hosp); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":  "Hospital created",
		"id":       hosp.ID,
		"hospital": hosp,
	})
}

func (h *Handler) GetHospitalDetails(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	details, err := h.svc.HospitalDetails(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type addDoctorRequest struct {
	HospitalID     int64  `json:"hospital_id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Availability   string `json:"availability"`
	IsVisiting     bool   `json:"is_visiting"`
}

func (h *Handler) AddDoctor(c echo.Context) error {
	var req addDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if req.HospitalID == 0 {
		req.HospitalID = auth.HospitalIDFromContext(ctx)
	}
	if !auth.CanManageHospital(ctx, req.HospitalID) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}
	d := &Doctor{
		HospitalID:     req.HospitalID,
		Name:           req.Name,
		Specialization: req.Specialization,
		Availability:   req.Availability,
		IsVisiting:     req.IsVisiting,
	}
	if err := h.svc.AddDoctor(ctx, d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"message": "Doctor added", "doctor": d})
}

func (h *Handler) SearchBeds(c echo.Context) error {
	q := BedSearch{
		Location: c.QueryParam("location"),
		BedType:  c.QueryParam("type"),
		Price:    c.QueryParam("price"),
	}
	items, err := h.svc.SearchBeds(c.Request().Context(), q)
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []*BedListing{}
	}
	return c.JSON(http.StatusOK, items)
}

type upsertBedRequest struct {
	HospitalID     int64   `json:"hospital_id"`
	BedType        string  `json:"bed_type"`
	TotalCount     int     `json:"total_count"`
	AvailableCount int     `json:"available_count"`
	Price          float64 `json:"price"`
}

func (h *Handler) UpsertBed(c echo.Context) error {
	var req upsertBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if req.HospitalID == 0 {
		req.HospitalID = auth.HospitalIDFromContext(ctx)
	}
	if !auth.CanManageHospital(ctx, req.HospitalID) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}

	bed := &BedInventory{
		HospitalID:     req.HospitalID,
		BedType:        req.BedType,
		TotalCount:     req.TotalCount,
		AvailableCount: req.AvailableCount,
		Price:          req.Price,
	}
	created, err := h.svc.UpsertBed(ctx, bed)
	if err != nil {
		return mapError(err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{"message": "Bed data updated", "bed": bed})
}

func (h *Handler) DeleteBed(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	bed, err := h.svc.GetBed(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if !auth.CanManageHospital(ctx, bed.HospitalID) {
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this hospital")
	}
	if err := h.svc.DeleteBed(ctx, id); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Bed deleted successfully"})
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
	case errors.Is(err, ErrInvalidBed), errors.Is(err, ErrInvalidHospital), errors.Is(err, ErrInvalidDoctor):
		return middleware.NewError(http.StatusBadRequest, "invalid_request", err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func nonNil(items []*Hospital) []*Hospital {
	if items == nil {
		return []*Hospital{}
	}
	return items
}
