package models

import "time"

// TrendPoint is one calendar day of a trend series. Date uses the 2006-01-02 layout.
type TrendPoint struct {
	Date  string  `bson:"date" json:"date"`
	Value float64 `bson:"value" json:"value"`
}

// EquipmentStats summarises the unit collection.
type EquipmentStats struct {
	TotalEquipment       int `bson:"total_equipment" json:"totalEquipment"`
	AvailableEquipment   int `bson:"available_equipment" json:"availableEquipment"`
	InUseEquipment       int `bson:"in_use_equipment" json:"inUseEquipment"`
	MaintenanceEquipment int `bson:"maintenance_equipment" json:"maintenanceEquipment"`
}

// BorrowingStats summarises a set of borrowings.
type BorrowingStats struct {
	TotalBorrowings   int `bson:"total_borrowings" json:"totalBorrowings"`
	ActiveBorrowings  int `bson:"active_borrowings" json:"activeBorrowings"`
	OverdueBorrowings int `bson:"overdue_borrowings" json:"overdueItems"`
}

// RentalStats summarises a set of rentals.
type RentalStats struct {
	TotalRentals  int     `bson:"total_rentals" json:"totalRentals"`
	ActiveRentals int     `bson:"active_rentals" json:"activeRentals"`
	OverdueRental int     `bson:"overdue_rentals" json:"overdueRentals"`
	Revenue       float64 `bson:"revenue" json:"revenue"`
}

// Report is the derived snapshot shown on the reports screen.
type Report struct {
	EquipmentStats      `bson:",inline"`
	BorrowingStats      `bson:",inline"`
	RentalStats         `bson:",inline"`
	EquipmentByCategory map[string]int `bson:"equipment_by_category" json:"equipmentByCategory"`
	EquipmentByStatus   map[string]int `bson:"equipment_by_status" json:"equipmentByStatus"`
	BorrowingsTrend     []TrendPoint   `bson:"borrowings_trend" json:"borrowingsTrend"`
	RentalsTrend        []TrendPoint   `bson:"rentals_trend" json:"rentalsTrend"`
	RevenueTrend        []TrendPoint   `bson:"revenue_trend" json:"revenueTrend"`
}

// DashboardStats backs the landing page summary cards.
type DashboardStats struct {
	TotalEquipment    int `json:"totalEquipment"`
	CurrentlyBorrowed int `json:"currentlyBorrowed"`
	ActiveRentals     int `json:"activeRentals"`
}

// ReportSnapshot is a report persisted by the daily job.
type ReportSnapshot struct {
	ID         string    `bson:"_id" json:"id"`
	Date       time.Time `bson:"date" json:"date"`
	RangeStart time.Time `bson:"range_start" json:"rangeStart"`
	RangeEnd   time.Time `bson:"range_end" json:"rangeEnd"`
	Report     Report    `bson:"report" json:"report"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}
