package identity

import (
	"errors"
	"net/http"

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
	api.POST("/signup", h.Signup)
	api.GET("/patient/search", h.SearchPatient, auth.RequireRole(auth.RoleHospitalStaff, auth.RoleLabTech))
}

type signupRequest struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	FullName   string `json:"full_name"`
	HospitalID *int64 `json:"hospital_id"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Role == auth.RoleAdmin && !auth.HasAnyRole(c.Request().Context(), auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "admin accounts can only be created by an admin")
	}

	u := &User{Username: req.Username, Role: req.Role, FullName: req.FullName, HospitalID: req.HospitalID}
	if err := h.svc.Create(c.Request().Context(), u); err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return middleware.NewError(http.StatusBadRequest, "duplicate", "Username already exists")
		case errors.Is(err, ErrInvalidUser):
			return middleware.NewError(http.StatusBadRequest, "invalid_request", err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    u,
	})
}

func (h *Handler) SearchPatient(c echo.Context) error {
	htid := c.QueryParam("hospitrack_id")
	if htid == "" {
		return middleware.NewError(http.StatusBadRequest, "invalid_request", "No ID provided")
	}
	u, err := h.svc.GetByHospitrackID(c.Request().Context(), htid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return middleware.NewError(http.StatusNotFound, "not_found", "Patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u.Card())
}
