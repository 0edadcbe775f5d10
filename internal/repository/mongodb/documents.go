package mongodb

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// Legacy documents were written by hand and by older clients, so the loosely
// typed fields decode into interface{} and are normalised here.

type equipmentDoc struct {
	ID           string      `bson:"_id"`
	EquipmentID  interface{} `bson:"equipmentId"`
	Name         interface{} `bson:"name"`
	Category     interface{} `bson:"category"`
	SerialNumber interface{} `bson:"serialNumber"`
	Status       interface{} `bson:"status"`
	InStock      interface{} `bson:"inStock"`
	Value        interface{} `bson:"value"`
	Location     interface{} `bson:"location"`
	PowerVoltage interface{} `bson:"powerVoltage"`
	Voltage      interface{} `bson:"voltage"`
	Issues       interface{} `bson:"issues"`
	Action       interface{} `bson:"action"`
	ImagePath    interface{} `bson:"imagePath"`
	LastUpdated  interface{} `bson:"lastUpdated"`
	CreatedAt    interface{} `bson:"createdAt"`
	UpdatedAt    interface{} `bson:"updatedAt"`
	Deleted      interface{} `bson:"deleted"`
	DeletedAt    interface{} `bson:"deletedAt"`
}

func (d equipmentDoc) toDomain() models.EquipmentUnit {
	inStock := true
	if d.InStock != nil {
		inStock = asBool(d.InStock)
	}
	return models.EquipmentUnit{
		ID:           d.ID,
		EquipmentID:  asString(d.EquipmentID),
		Name:         asString(d.Name),
		Category:     asString(d.Category),
		SerialNumber: asString(d.SerialNumber),
		Status:       models.NormalizeEquipmentStatus(asString(d.Status)),
		InStock:      inStock,
		Value:        asFloat(d.Value),
		Location:     asString(d.Location),
		PowerVoltage: asFloat(d.PowerVoltage),
		Voltage:      asFloat(d.Voltage),
		Issues:       asString(d.Issues),
		Action:       asString(d.Action),
		ImagePath:    asString(d.ImagePath),
		LastUpdated:  asTime(d.LastUpdated),
		CreatedAt:    asTime(d.CreatedAt),
		UpdatedAt:    asTime(d.UpdatedAt),
		Deleted:      asBool(d.Deleted),
		DeletedAt:    asTimePtr(d.DeletedAt),
	}
}

func equipmentFields(u models.EquipmentUnit) bson.M {
	return bson.M{
		"equipmentId":  u.EquipmentID,
		"name":         u.Name,
		"category":     u.Category,
		"serialNumber": u.SerialNumber,
		"status":       string(u.Status),
		"inStock":      u.InStock,
		"value":        u.Value,
		"location":     u.Location,
		"powerVoltage": u.PowerVoltage,
		"voltage":      u.Voltage,
		"issues":       u.Issues,
		"action":       u.Action,
		"imagePath":    u.ImagePath,
		"lastUpdated":  u.LastUpdated,
		"createdAt":    u.CreatedAt,
		"updatedAt":    u.UpdatedAt,
		"deleted":      u.Deleted,
		"deletedAt":    u.DeletedAt,
	}
}

// loanFieldNames maps the neutral loan attributes onto the field names each
// collection has always used.
type loanFieldNames struct {
	Holder    string
	StartDate string
	DueDate   string
	ClosedAt  string
}

var loanFields = map[models.LoanKind]loanFieldNames{
	models.KindBorrowing: {Holder: "borrower", StartDate: "borrowDate", DueDate: "expectedReturnDate", ClosedAt: "actualReturnDate"},
	models.KindRental:    {Holder: "client", StartDate: "rentalStart", DueDate: "rentalEnd", ClosedAt: "returnDate"},
}

// loanDoc is the union of both loan collections.
type loanDoc struct {
	ID                 string      `bson:"_id"`
	EquipmentID        interface{} `bson:"equipmentId"`
	Borrower           interface{} `bson:"borrower"`
	Client             interface{} `bson:"client"`
	Department         interface{} `bson:"department"`
	Purpose            interface{} `bson:"purpose"`
	Company            interface{} `bson:"company"`
	ContactInfo        interface{} `bson:"contactInfo"`
	Notes              interface{} `bson:"notes"`
	Status             interface{} `bson:"status"`
	BorrowDate         interface{} `bson:"borrowDate"`
	ExpectedReturnDate interface{} `bson:"expectedReturnDate"`
	ActualReturnDate   interface{} `bson:"actualReturnDate"`
	RentalStart        interface{} `bson:"rentalStart"`
	RentalEnd          interface{} `bson:"rentalEnd"`
	ReturnDate         interface{} `bson:"returnDate"`
	RentalRate         interface{} `bson:"rentalRate"`
	TotalCost          interface{} `bson:"totalCost"`
	PaymentStatus      interface{} `bson:"paymentStatus"`
	CreatedAt          interface{} `bson:"createdAt"`
	UpdatedAt          interface{} `bson:"updatedAt"`
	Deleted            interface{} `bson:"deleted"`
	DeletedAt          interface{} `bson:"deletedAt"`
}

func (d loanDoc) toDomain(kind models.LoanKind) models.LoanRecord {
	record := models.LoanRecord{
		ID:          d.ID,
		Kind:        kind,
		EquipmentID: asString(d.EquipmentID),
		Department:  asString(d.Department),
		Purpose:     asString(d.Purpose),
		Company:     asString(d.Company),
		ContactInfo: asString(d.ContactInfo),
		Notes:       asString(d.Notes),
		CreatedAt:   asTime(d.CreatedAt),
		UpdatedAt:   asTime(d.UpdatedAt),
		Deleted:     asBool(d.Deleted),
		DeletedAt:   asTimePtr(d.DeletedAt),
	}

	status, _ := models.ParseLoanStatus(kind, asString(d.Status))
	record.Status = status

	switch kind {
	case models.KindBorrowing:
		record.Holder = asString(d.Borrower)
		record.StartDate = asTime(d.BorrowDate)
		record.DueDate = asTime(d.ExpectedReturnDate)
		record.ClosedAt = asTimePtr(d.ActualReturnDate)
	case models.KindRental:
		record.Holder = asString(d.Client)
		record.StartDate = asTime(d.RentalStart)
		record.DueDate = asTime(d.RentalEnd)
		record.ClosedAt = asTimePtr(d.ReturnDate)
		record.RentalRate = asFloat(d.RentalRate)
		record.TotalCost = asFloat(d.TotalCost)
		payment, ok := models.ParsePaymentStatus(asString(d.PaymentStatus))
		if !ok {
			payment = models.PaymentPending
		}
		record.PaymentStatus = payment
	}
	return record
}

func loanDocument(r models.LoanRecord) bson.M {
	names := loanFields[r.Kind]
	doc := bson.M{
		"_id":           r.ID,
		"equipmentId":   r.EquipmentID,
		names.Holder:    r.Holder,
		"status":        string(r.Status),
		names.StartDate: r.StartDate,
		names.DueDate:   r.DueDate,
		names.ClosedAt:  r.ClosedAt,
		"open":          r.IsOpen() && !r.Deleted,
		"createdAt":     r.CreatedAt,
		"updatedAt":     r.UpdatedAt,
		"deleted":       r.Deleted,
		"deletedAt":     r.DeletedAt,
	}
	switch r.Kind {
	case models.KindBorrowing:
		doc["department"] = r.Department
		doc["purpose"] = r.Purpose
	case models.KindRental:
		doc["company"] = r.Company
		doc["contactInfo"] = r.ContactInfo
		doc["notes"] = r.Notes
		doc["rentalRate"] = r.RentalRate
		doc["totalCost"] = r.TotalCost
		doc["paymentStatus"] = string(r.PaymentStatus)
	}
	return doc
}

// patchFields renders the set fields of a patch for $set. updated is the
// record with the patch applied and decides the open flag.
func patchFields(kind models.LoanKind, patch models.LoanPatch, updated models.LoanRecord) bson.M {
	names := loanFields[kind]
	set := bson.M{
		"open":      updated.IsOpen() && !updated.Deleted,
		"updatedAt": updated.UpdatedAt,
	}
	if patch.Holder != nil {
		set[names.Holder] = *patch.Holder
	}
	if patch.Department != nil {
		set["department"] = *patch.Department
	}
	if patch.Purpose != nil {
		set["purpose"] = *patch.Purpose
	}
	if patch.Company != nil {
		set["company"] = *patch.Company
	}
	if patch.ContactInfo != nil {
		set["contactInfo"] = *patch.ContactInfo
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.DueDate != nil {
		set[names.DueDate] = *patch.DueDate
	}
	if patch.ClosedAt != nil || patch.ClearClosedAt {
		set[names.ClosedAt] = updated.ClosedAt
	}
	if patch.TotalCost != nil {
		set["totalCost"] = *patch.TotalCost
	}
	if patch.PaymentStatus != nil {
		set["paymentStatus"] = string(*patch.PaymentStatus)
	}
	return set
}

type userDoc struct {
	ID           string     `bson:"_id"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"passwordHash"`
	CreatedAt    time.Time  `bson:"createdAt"`
	LastSignInAt *time.Time `bson:"lastSignInAt,omitempty"`
}

func (d userDoc) toDomain() models.User {
	return models.User{ID: d.ID, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt, LastSignInAt: d.LastSignInAt}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case primitive.ObjectID:
		return t.Hex()
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case primitive.Decimal128:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case int64:
		return time.UnixMilli(t).UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func asTimePtr(v interface{}) *time.Time {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
