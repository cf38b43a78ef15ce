package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RolePatient       = "patient"
	RoleHospitalStaff = "hospital_staff"
	RoleLabTech       = "lab_tech"
	RoleAdmin         = "admin"
)

// ValidRole reports whether r is one of the roles a user can hold.
func ValidRole(r string) bool {
	switch r {
	case RolePatient, RoleHospitalStaff, RoleLabTech, RoleAdmin:
		return true
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func HasAnyRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// CanManageHospital reports whether the caller may act on hospitalID's
// ledger. Staff tokens without a hospital claim are not restricted.
func CanManageHospital(ctx context.Context, hospitalID int64) bool {
	if HasAnyRole(ctx, RoleAdmin) {
		return true
	}
	if !HasAnyRole(ctx, RoleHospitalStaff) {
		return false
	}
	own := HospitalIDFromContext(ctx)
	return own == 0 || own == hospitalID
}

// PatientScope resolves which patient a patient-facing request acts for. A
// zero requested id means the caller. Patients may only act for themselves;
// admins and staff may name any patient.
func PatientScope(ctx context.Context, requested int64) (int64, bool) {
	if HasAnyRole(ctx, RoleHospitalStaff) {
		return requested, requested > 0
	}
	own, err := strconv.ParseInt(UserIDFromContext(ctx), 10, 64)
	if err != nil || own <= 0 {
		return 0, false
	}
	if requested != 0 && requested != own {
		return 0, false
	}
	return own, true
}
