package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidBed    = errors.New("invalid bed inventory")
	ErrInvalidDoctor = errors.New("invalid doctor")
)

// PriceThreshold splits SearchBeds' "low" and "high" price bands.
const PriceThreshold = 200.0

type Hospital struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Aggregates over the hospital's inventory rows, filled by list queries.
	AvailableBeds int `json:"available_beds"`
	TotalBeds     int `json:"total_beds"`
}

type BedInventory struct {
	ID             int64     `json:"id"`
	HospitalID     int64     `json:"hospital_id"`
	BedType        string    `json:"bed_type"`
	TotalCount     int       `json:"total_count"`
	AvailableCount int       `json:"available_count"`
	Price          float64   `json:"price"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate enforces 0 <= available_count <= total_count on catalog edits.
func (b *BedInventory) Validate() error {
	b.BedType = strings.TrimSpace(b.BedType)
	switch {
	case b.HospitalID <= 0:
		return fmt.Errorf("%w: hospital_id is required", ErrInvalidBed)
	case b.BedType == "":
		return fmt.Errorf("%w: bed_type is required", ErrInvalidBed)
	case b.TotalCount < 0:
		return fmt.Errorf("%w: total_count must not be negative", ErrInvalidBed)
	case b.AvailableCount < 0:
		return fmt.Errorf("%w: available_count must not be negative", ErrInvalidBed)
	case b.AvailableCount > b.TotalCount:
		return fmt.Errorf("%w: available_count %d exceeds total_count %d", ErrInvalidBed, b.AvailableCount, b.TotalCount)
	case b.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidBed)
	}
	return nil
}

// Held is the number of units currently out on reservation.
func (b *BedInventory) Held() int {
	return b.TotalCount - b.AvailableCount
}

// Doctor is a roster entry. Availability is free text such as
// "Mon-Fri 9AM-5PM".
type Doctor struct {
	ID             int64     `json:"id"`
	HospitalID     int64     `json:"hospital_id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Availability   string    `json:"availability,omitempty"`
	IsVisiting     bool      `json:"is_visiting"`
	CreatedAt      time.Time `json:"created_at"`
}

func (d *Doctor) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Specialization = strings.TrimSpace(d.Specialization)
	switch {
	case d.HospitalID <= 0:
		return fmt.Errorf("%w: hospital_id is required", ErrInvalidDoctor)
	case d.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDoctor)
	}
	return nil
}

// BedListing is one row of a bed search, joined with its hospital.
type BedListing struct {
	BedID            int64   `json:"bed_id"`
	BedType          string  `json:"bed_type"`
	Price            float64 `json:"price"`
	AvailableCount   int     `json:"available_count"`
	HospitalID       int64   `json:"hospital_id"`
	HospitalName     string  `json:"hospital_name"`
	HospitalLocation string  `json:"hospital_location"`
}

// BedSearch filters SearchBeds. Location matches hospital name or location,
// case-insensitively. Price is "low", "high" or empty.
type BedSearch struct {
	Location string
	BedType  string
	Price    string
}

type HospitalDetails struct {
	Hospital *Hospital      `json:"hospital"`
	Beds     []*BedInventory `json:"beds"`
}

func matchesPrice(band string, price float64) bool {
	switch band {
	case "low":
		return price < PriceThreshold
	case "high":
		return price >= PriceThreshold
	default:
		return true
	}
}
