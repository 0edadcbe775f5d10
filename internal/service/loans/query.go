package loans

import (
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
)

const unknownLabel = "Unknown"

// Query selects a page of loans.
type Query struct {
	Search         string
	Status         string
	EquipmentID    string
	IncludeDeleted bool
	Page           models.PageRequest
}

func (s *Service) get(ctx context.Context, kind models.LoanKind, id string) (models.LoanView, error) {
	record, err := s.store.GetLoan(ctx, kind, id)
	if err != nil {
		return models.LoanView{}, err
	}
	unit, err := s.store.GetEquipment(ctx, record.EquipmentID)
	var units map[string]models.EquipmentUnit
	if err == nil {
		units = map[string]models.EquipmentUnit{unit.ID: unit}
	}
	return s.view(ctx, record, units), nil
}

func (s *Service) list(ctx context.Context, kind models.LoanKind, q Query) (models.Page[models.LoanView], error) {
	filter := models.LoanFilter{EquipmentID: q.EquipmentID, IncludeDeleted: q.IncludeDeleted}
	if strings.TrimSpace(q.Status) != "" {
		status, ok := models.ParseLoanStatus(kind, q.Status)
		if !ok {
			return models.Page[models.LoanView]{}, models.NewValidationError("status", fmt.Sprintf("unknown %s status %s", kind, q.Status))
		}
		filter.Status = status
	}

	records, err := s.store.QueryLoanRecords(ctx, kind, filter, repository.OrderBy{})
	if err != nil {
		return models.Page[models.LoanView]{}, fmt.Errorf("query %s: %w", kind, err)
	}
	units, err := s.unitIndex(ctx)
	if err != nil {
		return models.Page[models.LoanView]{}, err
	}

	term := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]models.LoanRecord, 0, len(records))
	for _, r := range records {
		if term == "" || matchesSearch(r, units[r.EquipmentID], term) {
			matched = append(matched, r)
		}
	}

	window := models.Paginate(matched, q.Page)
	page := models.Page[models.LoanView]{
		Items: make([]models.LoanView, 0, len(window.Items)),
		Total: window.Total,
		Page:  window.Page,
		Size:  window.Size,
	}
	for _, r := range window.Items {
		page.Items = append(page.Items, s.view(ctx, r, units))
	}
	return page, nil
}

func (s *Service) unitIndex(ctx context.Context) (map[string]models.EquipmentUnit, error) {
	units, err := s.store.QueryEquipment(ctx, models.EquipmentFilter{IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	index := make(map[string]models.EquipmentUnit, len(units))
	for _, u := range units {
		index[u.ID] = u
	}
	return index, nil
}

func matchesSearch(r models.LoanRecord, unit models.EquipmentUnit, term string) bool {
	for _, field := range []string{r.Holder, r.Department, r.Purpose, r.Company, unit.Name, unit.EquipmentID} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// view enriches a record with its unit. A dangling reference shows as Unknown.
func (s *Service) view(ctx context.Context, r models.LoanRecord, units map[string]models.EquipmentUnit) models.LoanView {
	v := models.LoanView{
		LoanRecord:        r,
		EquipmentName:     unknownLabel,
		EquipmentCategory: unknownLabel,
		Overdue:           lifecycle.IsOverdue(r, s.now()),
	}
	unit, ok := units[r.EquipmentID]
	if !ok {
		return v
	}
	if unit.Name != "" {
		v.EquipmentName = unit.Name
	}
	if unit.Category != "" {
		v.EquipmentCategory = unit.Category
	}
	if s.images != nil {
		v.EquipmentImageURL = s.images.ImageURL(ctx, unit)
	}
	return v
}
