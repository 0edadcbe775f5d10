package models

import (
	"sort"
	"strings"
	"time"
)

// EquipmentStatus is the single lifecycle state of an equipment unit.
type EquipmentStatus string

const (
	StatusAvailable   EquipmentStatus = "Available"
	StatusInUse       EquipmentStatus = "In Use"
	StatusMaintenance EquipmentStatus = "Maintenance"
	StatusBroken      EquipmentStatus = "Broken"
	StatusRetired     EquipmentStatus = "Retired"
	StatusRented      EquipmentStatus = "Rented"
	// StatusUnknown marks legacy documents whose stored status is missing or unrecognised.
	StatusUnknown EquipmentStatus = "Unknown"
)

var statusLabels = map[string]EquipmentStatus{
	"available":   StatusAvailable,
	"inuse":       StatusInUse,
	"borrowed":    StatusInUse,
	"maintenance": StatusMaintenance,
	"broken":      StatusBroken,
	"retired":     StatusRetired,
	"rented":      StatusRented,
}

// ParseEquipmentStatus maps a stored or user supplied label to a known status.
// "Borrowed" and "InUse" are accepted as aliases of StatusInUse.
func ParseEquipmentStatus(value string) (EquipmentStatus, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(value), ""))
	if status, ok := statusLabels[normalized]; ok {
		return status, true
	}
	return StatusUnknown, false
}

// StatusLabels lists the lower-case, space-free labels ParseEquipmentStatus
// maps to status, sorted.
func StatusLabels(status EquipmentStatus) []string {
	var out []string
	for label, s := range statusLabels {
		if s == status {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeEquipmentStatus is ParseEquipmentStatus without the ok flag.
func NormalizeEquipmentStatus(value string) EquipmentStatus {
	status, _ := ParseEquipmentStatus(value)
	return status
}

// LoanGoverned reports whether the status is only reachable through a loan transition.
func (s EquipmentStatus) LoanGoverned() bool {
	return s == StatusInUse || s == StatusRented
}

// EquipmentUnit is a trackable physical asset.
type EquipmentUnit struct {
	ID           string          `json:"id"`
	EquipmentID  string          `json:"equipmentId"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	SerialNumber string          `json:"serialNumber"`
	Status       EquipmentStatus `json:"status"`
	InStock      bool            `json:"inStock"`
	Value        float64         `json:"value"`
	Location     string          `json:"location"`
	PowerVoltage float64         `json:"powerVoltage"`
	Voltage      float64         `json:"voltage"`
	Issues       string          `json:"issues,omitempty"`
	Action       string          `json:"action,omitempty"`
	ImagePath    string          `json:"imagePath,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Deleted      bool            `json:"deleted,omitempty"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty"`
}

// EquipmentInput carries the operator editable attributes of a unit.
type EquipmentInput struct {
	EquipmentID  string  `json:"equipmentId"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	SerialNumber string  `json:"serialNumber"`
	Status       string  `json:"status"`
	InStock      *bool   `json:"inStock"`
	Value        float64 `json:"value"`
	Location     string  `json:"location"`
	PowerVoltage float64 `json:"powerVoltage"`
	Voltage      float64 `json:"voltage"`
	Issues       string  `json:"issues"`
	Action       string  `json:"action"`
}

// Validate checks the fields every stored unit must carry.
func (in EquipmentInput) Validate() error {
	verr := &ValidationError{}
	verr.require("equipmentId", in.EquipmentID)
	verr.require("name", in.Name)
	verr.require("category", in.Category)
	verr.require("serialNumber", in.SerialNumber)
	verr.require("location", in.Location)
	if in.Value < 0 {
		verr.add("value", "must not be negative")
	}
	if strings.TrimSpace(in.Status) != "" {
		if _, ok := ParseEquipmentStatus(in.Status); !ok {
			verr.add("status", "unknown status "+in.Status)
		}
	}
	return verr.orNil()
}

// EquipmentFilter narrows equipment queries.
type EquipmentFilter struct {
	Status         EquipmentStatus
	Category       string
	EquipmentID    string
	IncludeDeleted bool
}
