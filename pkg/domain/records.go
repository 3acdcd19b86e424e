// Package domain defines the livestock record types, storage keys and the
// collaborator interfaces shared by the sync, session and storage layers.
package domain

import (
	"strings"
	"time"
)

// Collection names a remote append-only collection.
type Collection string

const (
	CollectionFarmers  Collection = "farmers"
	CollectionOfftakes Collection = "offtakes"
)

// Gender of the registered farmer or seller.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// DateLayout is the fixed day-month-year format stored on records ("16 Oct 2026").
const DateLayout = "02 Jan 2006"

// NotApplicable marks optional date fields that were never captured.
const NotApplicable = "N/A"

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Record is implemented by every submitted entry type.
type Record interface {
	Collection() Collection
}

// FarmerRecord is a single farmer registration.
type FarmerRecord struct {
	Name             string `json:"name" validate:"notblank"`
	Location         string `json:"location" validate:"notblank"`
	Gender           Gender `json:"gender" validate:"oneof=male female"`
	IDNumber         string `json:"idNumber" validate:"notblank"`
	Phone            string `json:"phone" validate:"phone"`
	RegistrationDate string `json:"registrationDate" validate:"required"`
	Goats            int    `json:"goats" validate:"gt=0"`
	AgeGroup         string `json:"ageGroup" validate:"oneof=0-6 7-12"`
	VaccinationDate  string `json:"vaccinationDate"`
	VaccineType      string `json:"vaccineType" validate:"notblank"`
	Traceability     bool   `json:"traceability"`
	County           string `json:"county" validate:"notblank"`
}

// Collection implements Record.
func (FarmerRecord) Collection() Collection { return CollectionFarmers }

// GoatWeight is one weighed goat within an offtake.
type GoatWeight struct {
	Live    float64 `json:"live"`
	Carcass float64 `json:"carcass"`
	Price   float64 `json:"price"`
}

// Priced reports whether the entry carries a usable live weight and price.
func (g GoatWeight) Priced() bool {
	return g.Live > 0 && g.Price > 0
}

// OfftakeRecord is a goat offtake (sale) entry.
type OfftakeRecord struct {
	Code       string       `json:"code,omitempty"`
	Name       string       `json:"name" validate:"notblank"`
	Gender     Gender       `json:"gender" validate:"oneof=male female"`
	IDNumber   string       `json:"idNumber" validate:"notblank"`
	Phone      string       `json:"phone" validate:"phone"`
	Date       string       `json:"date" validate:"required"`
	County     string       `json:"county" validate:"notblank"`
	Goats      []GoatWeight `json:"goats" validate:"priced"`
	TotalGoats int          `json:"totalGoats"`
	TotalPrice float64      `json:"totalPrice"`
}

// Collection implements Record.
func (OfftakeRecord) Collection() Collection { return CollectionOfftakes }

// NewOfftakeRecord fills the derived totals from goats. Only priced entries count.
func NewOfftakeRecord(base OfftakeRecord, goats []GoatWeight) OfftakeRecord {
	out := base
	out.Goats = append([]GoatWeight(nil), goats...)
	out.TotalGoats = 0
	out.TotalPrice = 0
	for _, g := range out.Goats {
		if g.Priced() {
			out.TotalGoats++
			out.TotalPrice += g.Price
		}
	}
	return out
}

// CountyPrefix returns the first three letters of county, uppercased.
func CountyPrefix(county string) string {
	c := strings.TrimSpace(county)
	if len(c) > 3 {
		c = c[:3]
	}
	return strings.ToUpper(c)
}
