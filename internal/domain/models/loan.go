package models

import (
	"strings"
	"time"
)

// LoanKind distinguishes the two loan collections.
type LoanKind string

const (
	KindBorrowing LoanKind = "borrowing"
	KindRental    LoanKind = "rental"
)

// Valid reports whether the kind is one of the known collections.
func (k LoanKind) Valid() bool {
	return k == KindBorrowing || k == KindRental
}

// LoanStatus covers both the borrowing and the rental state machines.
type LoanStatus string

const (
	LoanBorrowed  LoanStatus = "Borrowed"
	LoanReturned  LoanStatus = "Returned"
	LoanOverdue   LoanStatus = "Overdue"
	LoanActive    LoanStatus = "Active"
	LoanCompleted LoanStatus = "Completed"
	LoanCancelled LoanStatus = "Cancelled"
)

// Terminal reports whether the status closes the loan.
func (s LoanStatus) Terminal() bool {
	return s == LoanReturned || s == LoanCompleted || s == LoanCancelled
}

// ParseLoanStatus maps a label onto the state machine of the given kind.
func ParseLoanStatus(kind LoanKind, value string) (LoanStatus, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch kind {
	case KindBorrowing:
		switch v {
		case "borrowed":
			return LoanBorrowed, true
		case "returned":
			return LoanReturned, true
		case "overdue":
			return LoanOverdue, true
		}
	case KindRental:
		switch v {
		case "active":
			return LoanActive, true
		case "completed":
			return LoanCompleted, true
		case "cancelled", "canceled":
			return LoanCancelled, true
		}
	}
	return "", false
}

// OpenStatus is the status a freshly opened loan of this kind carries.
func (k LoanKind) OpenStatus() LoanStatus {
	if k == KindRental {
		return LoanActive
	}
	return LoanBorrowed
}

// PaymentStatus tracks rental settlement.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentOverdue PaymentStatus = "Overdue"
)

// ParsePaymentStatus accepts the three payment labels case-insensitively.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending":
		return PaymentPending, true
	case "paid":
		return PaymentPaid, true
	case "overdue":
		return PaymentOverdue, true
	}
	return "", false
}

// LoanRecord is a borrowing or a rental against one equipment unit.
// Holder is the borrower of a borrowing or the client of a rental.
type LoanRecord struct {
	ID            string        `json:"id"`
	Kind          LoanKind      `json:"kind"`
	EquipmentID   string        `json:"equipmentId"`
	Holder        string        `json:"holder"`
	Department    string        `json:"department,omitempty"`
	Purpose       string        `json:"purpose,omitempty"`
	Company       string        `json:"company,omitempty"`
	ContactInfo   string        `json:"contactInfo,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Status        LoanStatus    `json:"status"`
	StartDate     time.Time     `json:"startDate"`
	DueDate       time.Time     `json:"dueDate"`
	ClosedAt      *time.Time    `json:"closedAt,omitempty"`
	RentalRate    float64       `json:"rentalRate,omitempty"`
	TotalCost     float64       `json:"totalCost,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Deleted       bool          `json:"deleted,omitempty"`
	DeletedAt     *time.Time    `json:"deletedAt,omitempty"`
}

// IsOpen reports whether the loan still holds its unit.
func (r LoanRecord) IsOpen() bool {
	return r.ClosedAt == nil && !r.Status.Terminal()
}

// LoanPatch lists the fields an update may change; nil fields are left untouched.
type LoanPatch struct {
	Holder        *string
	Department    *string
	Purpose       *string
	Company       *string
	ContactInfo   *string
	Notes         *string
	Status        *LoanStatus
	DueDate       *time.Time
	ClosedAt      *time.Time
	ClearClosedAt bool
	TotalCost     *float64
	PaymentStatus *PaymentStatus
}

// Apply copies the set fields of the patch onto the record.
func (p LoanPatch) Apply(r *LoanRecord) {
	if p.Holder != nil {
		r.Holder = *p.Holder
	}
	if p.Department != nil {
		r.Department = *p.Department
	}
	if p.Purpose != nil {
		r.Purpose = *p.Purpose
	}
	if p.Company != nil {
		r.Company = *p.Company
	}
	if p.ContactInfo != nil {
		r.ContactInfo = *p.ContactInfo
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.DueDate != nil {
		r.DueDate = *p.DueDate
	}
	if p.ClearClosedAt {
		r.ClosedAt = nil
	}
	if p.ClosedAt != nil {
		closed := *p.ClosedAt
		r.ClosedAt = &closed
	}
	if p.TotalCost != nil {
		r.TotalCost = *p.TotalCost
	}
	if p.PaymentStatus != nil {
		r.PaymentStatus = *p.PaymentStatus
	}
}

// LoanFilter narrows loan queries.
type LoanFilter struct {
	EquipmentID    string
	Status         LoanStatus
	OpenOnly       bool
	StartFrom      *time.Time
	StartTo        *time.Time
	IncludeDeleted bool
}

// BorrowingInput is the payload of a new borrowing.
type BorrowingInput struct {
	EquipmentID        string     `json:"equipmentId"`
	Borrower           string     `json:"borrower"`
	Department         string     `json:"department"`
	Purpose            string     `json:"purpose"`
	BorrowDate         *time.Time `json:"borrowDate"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate"`
}

// Validate checks required borrowing fields.
func (in BorrowingInput) Validate() error {
	verr := &ValidationError{}
	verr.require("equipmentId", in.EquipmentID)
	verr.require("borrower", in.Borrower)
	verr.require("department", in.Department)
	if in.BorrowDate != nil && in.ExpectedReturnDate != nil && in.ExpectedReturnDate.Before(*in.BorrowDate) {
		verr.add("expectedReturnDate", "must not be before borrowDate")
	}
	return verr.orNil()
}

// RentalInput is the payload of a new rental.
type RentalInput struct {
	EquipmentID   string     `json:"equipmentId"`
	Client        string     `json:"client"`
	Company       string     `json:"company"`
	ContactInfo   string     `json:"contactInfo"`
	Notes         string     `json:"notes"`
	RentalStart   *time.Time `json:"rentalStart"`
	RentalEnd     *time.Time `json:"rentalEnd"`
	RentalRate    float64    `json:"rentalRate"`
	TotalCost     float64    `json:"totalCost"`
	PaymentStatus string     `json:"paymentStatus"`
}

// Validate checks required rental fields.
func (in RentalInput) Validate() error {
	verr := &ValidationError{}
	verr.require("equipmentId", in.EquipmentID)
	verr.require("client", in.Client)
	if in.RentalRate <= 0 {
		verr.add("rentalRate", "must be positive")
	}
	if in.TotalCost < 0 {
		verr.add("totalCost", "must not be negative")
	}
	if strings.TrimSpace(in.PaymentStatus) != "" {
		if _, ok := ParsePaymentStatus(in.PaymentStatus); !ok {
			verr.add("paymentStatus", "unknown payment status "+in.PaymentStatus)
		}
	}
	return verr.orNil()
}

// LoanView is a loan enriched with the referenced unit's display attributes.
type LoanView struct {
	LoanRecord
	EquipmentName     string `json:"equipmentName"`
	EquipmentCategory string `json:"equipmentCategory"`
	EquipmentImageURL string `json:"equipmentImageUrl,omitempty"`
	Overdue           bool   `json:"overdue"`
}
