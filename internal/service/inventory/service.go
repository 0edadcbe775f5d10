// Package inventory manages equipment units and their images.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/metrics"
	"github.com/mamadbah2/equiptrack/internal/repository"
	"github.com/mamadbah2/equiptrack/internal/storage"
)

const imagePrefix = "equipment-images/"

// Store is the persistence the inventory needs.
type Store interface {
	repository.EquipmentStore
	CountOpenLoans(ctx context.Context, equipmentID string) (int, error)
}

// Options tunes a Service. Zero values fall back to sensible defaults.
type Options struct {
	// PublicBaseURL prefixes image keys when the blob store cannot presign.
	PublicBaseURL string
	URLExpiry     time.Duration
	Retry         repository.RetryPolicy
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Service implements the equipment operations.
type Service struct {
	store   Store
	blobs   storage.Store
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewService wires an inventory service.
func NewService(store Store, blobs storage.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = 15 * time.Minute
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = repository.DefaultRetryPolicy()
	}
	return &Service{
		store:   store,
		blobs:   blobs,
		opts:    opts,
		metrics: opts.Metrics,
		now:     opts.Now,
		logger:  logger,
	}
}

// ListQuery selects a page of units.
type ListQuery struct {
	Search         string
	Status         string
	Category       string
	IncludeDeleted bool
	Page           models.PageRequest
}

// Create validates and stores a new unit. The status defaults to Available.
func (s *Service) Create(ctx context.Context, in models.EquipmentInput) (models.EquipmentUnit, error) {
	if err := in.Validate(); err != nil {
		return models.EquipmentUnit{}, err
	}
	status := models.StatusAvailable
	if strings.TrimSpace(in.Status) != "" {
		status = models.NormalizeEquipmentStatus(in.Status)
	}
	if err := lifecycle.ManualStatusChange(models.StatusAvailable, status, false); err != nil {
		return models.EquipmentUnit{}, err
	}

	now := s.now()
	unit := models.EquipmentUnit{
		ID:        uuid.NewString(),
		Status:    status,
		InStock:   true,
		CreatedAt: now,
	}
	applyInput(&unit, in, now)

	err := s.write(ctx, "create_equipment", func(ctx context.Context) error {
		return s.store.CreateEquipment(ctx, unit)
	})
	if err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("create equipment %s: %w", unit.EquipmentID, err)
	}
	s.logger.Info("equipment created", zap.String("id", unit.ID), zap.String("equipment_id", unit.EquipmentID))
	return unit, nil
}

// Get returns a unit by ID, including soft-deleted ones.
func (s *Service) Get(ctx context.Context, id string) (models.EquipmentUnit, error) {
	unit, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}
	unit.ImageURL = s.ImageURL(ctx, unit)
	return unit, nil
}

// List filters, searches and paginates units ordered by equipment code.
func (s *Service) List(ctx context.Context, q ListQuery) (models.Page[models.EquipmentUnit], error) {
	filter := models.EquipmentFilter{Category: q.Category, IncludeDeleted: q.IncludeDeleted}
	if strings.TrimSpace(q.Status) != "" {
		status, ok := models.ParseEquipmentStatus(q.Status)
		if !ok {
			return models.Page[models.EquipmentUnit]{}, models.NewValidationError("status", "unknown status "+q.Status)
		}
		filter.Status = status
	}

	units, err := s.store.QueryEquipment(ctx, filter)
	if err != nil {
		return models.Page[models.EquipmentUnit]{}, fmt.Errorf("query equipment: %w", err)
	}

	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term != "" {
		matched := units[:0]
		for _, u := range units {
			if matchesSearch(u, term) {
				matched = append(matched, u)
			}
		}
		units = matched
	}

	page := models.Paginate(units, q.Page)
	for i := range page.Items {
		page.Items[i].ImageURL = s.ImageURL(ctx, page.Items[i])
	}
	return page, nil
}

func matchesSearch(u models.EquipmentUnit, term string) bool {
	for _, field := range []string{u.Name, u.EquipmentID, u.SerialNumber, u.Category, u.Location} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// AvailableUnits lists the units a new loan may be opened against.
func (s *Service) AvailableUnits(ctx context.Context) ([]models.EquipmentUnit, error) {
	units, err := s.store.QueryEquipment(ctx, models.EquipmentFilter{Status: models.StatusAvailable})
	if err != nil {
		return nil, fmt.Errorf("query available equipment: %w", err)
	}
	for i := range units {
		units[i].ImageURL = s.ImageURL(ctx, units[i])
	}
	return units, nil
}

// Update replaces the editable attributes of a unit. A status change goes
// through the same rules as ChangeStatus.
func (s *Service) Update(ctx context.Context, id string, in models.EquipmentInput) (models.EquipmentUnit, error) {
	if err := in.Validate(); err != nil {
		return models.EquipmentUnit{}, err
	}
	unit, err := s.live(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}

	if strings.TrimSpace(in.Status) != "" {
		target := models.NormalizeEquipmentStatus(in.Status)
		if err := s.checkStatusChange(ctx, unit, target); err != nil {
			return models.EquipmentUnit{}, err
		}
		unit.Status = target
	}

	now := s.now()
	applyInput(&unit, in, now)
	if err := s.write(ctx, "update_equipment", func(ctx context.Context) error {
		return s.store.UpdateEquipment(ctx, unit)
	}); err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("update equipment %s: %w", id, err)
	}
	unit.ImageURL = s.ImageURL(ctx, unit)
	return unit, nil
}

// ChangeStatus applies an operator status edit.
func (s *Service) ChangeStatus(ctx context.Context, id, status string) (models.EquipmentUnit, error) {
	target, ok := models.ParseEquipmentStatus(status)
	if !ok {
		return models.EquipmentUnit{}, models.NewValidationError("status", "unknown status "+status)
	}
	unit, err := s.live(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}
	if err := s.checkStatusChange(ctx, unit, target); err != nil {
		return models.EquipmentUnit{}, err
	}
	if target == unit.Status {
		unit.ImageURL = s.ImageURL(ctx, unit)
		return unit, nil
	}

	now := s.now()
	if err := s.write(ctx, "update_equipment_status", func(ctx context.Context) error {
		return s.store.UpdateEquipmentStatus(ctx, id, target, now)
	}); err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("change status of equipment %s: %w", id, err)
	}
	s.logger.Info("equipment status changed",
		zap.String("id", id),
		zap.String("from", string(unit.Status)),
		zap.String("to", string(target)),
	)
	unit.Status = target
	unit.LastUpdated = now
	unit.UpdatedAt = now
	unit.ImageURL = s.ImageURL(ctx, unit)
	return unit, nil
}

func (s *Service) checkStatusChange(ctx context.Context, unit models.EquipmentUnit, target models.EquipmentStatus) error {
	if target == unit.Status {
		return nil
	}
	open, err := s.store.CountOpenLoans(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("count open loans of %s: %w", unit.ID, err)
	}
	return lifecycle.ManualStatusChange(unit.Status, target, open > 0)
}

// Delete soft-deletes a unit. Units with an open loan cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	unit, err := s.live(ctx, id)
	if err != nil {
		return err
	}
	open, err := s.store.CountOpenLoans(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("count open loans of %s: %w", unit.ID, err)
	}
	if open > 0 {
		return fmt.Errorf("delete equipment %s: %w", id, models.ErrOpenLoan)
	}
	if err := s.write(ctx, "delete_equipment", func(ctx context.Context) error {
		return s.store.SoftDeleteEquipment(ctx, id, s.now())
	}); err != nil {
		return fmt.Errorf("delete equipment %s: %w", id, err)
	}
	s.logger.Info("equipment deleted", zap.String("id", id))
	return nil
}

// SetImage uploads a new image for the unit and replaces the previous one.
func (s *Service) SetImage(ctx context.Context, id, name, contentType string, body io.Reader) (models.EquipmentUnit, error) {
	unit, err := s.live(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}
	base := imageName(name)
	if base == "" {
		return models.EquipmentUnit{}, models.NewValidationError("image", "file name is required")
	}

	now := s.now()
	key := fmt.Sprintf("%s%d-%s", imagePrefix, now.UnixMilli(), base)
	if _, err := s.blobs.Put(ctx, key, body, storage.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"equipment-id": unit.ID},
	}); err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("upload image %s: %w: %w", key, models.ErrWriteFailure, err)
	}

	previous := unit.ImagePath
	unit.ImagePath = key
	unit.UpdatedAt = now
	unit.LastUpdated = now
	if err := s.write(ctx, "update_equipment", func(ctx context.Context) error {
		return s.store.UpdateEquipment(ctx, unit)
	}); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("discard orphan image", zap.String("key", key), zap.Error(derr))
		}
		return models.EquipmentUnit{}, fmt.Errorf("save image of equipment %s: %w", id, err)
	}

	if previous != "" && previous != key {
		if err := s.blobs.Delete(ctx, previous); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("delete previous image", zap.String("key", previous), zap.Error(err))
		}
	}
	unit.ImageURL = s.ImageURL(ctx, unit)
	return unit, nil
}

// RemoveImage deletes the unit's image, if any.
func (s *Service) RemoveImage(ctx context.Context, id string) (models.EquipmentUnit, error) {
	unit, err := s.live(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}
	if unit.ImagePath == "" {
		return unit, nil
	}
	if err := s.blobs.Delete(ctx, unit.ImagePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.EquipmentUnit{}, fmt.Errorf("delete image %s: %w: %w", unit.ImagePath, models.ErrWriteFailure, err)
	}

	now := s.now()
	unit.ImagePath = ""
	unit.UpdatedAt = now
	unit.LastUpdated = now
	if err := s.write(ctx, "update_equipment", func(ctx context.Context) error {
		return s.store.UpdateEquipment(ctx, unit)
	}); err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("clear image of equipment %s: %w", id, err)
	}
	return unit, nil
}

// OpenImage streams the stored image of a unit. The caller closes the reader.
func (s *Service) OpenImage(ctx context.Context, id string) (storage.Info, io.ReadCloser, error) {
	unit, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return storage.Info{}, nil, err
	}
	if unit.ImagePath == "" {
		return storage.Info{}, nil, fmt.Errorf("image of equipment %s: %w", id, models.ErrNotFound)
	}
	info, body, err := s.blobs.Get(ctx, unit.ImagePath)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Info{}, nil, fmt.Errorf("image %s: %w", unit.ImagePath, models.ErrNotFound)
	}
	if err != nil {
		return storage.Info{}, nil, fmt.Errorf("read image %s: %w", unit.ImagePath, err)
	}
	return info, body, nil
}

// ImageURL resolves the display URL of a unit's image: a presigned URL when
// the blob store supports it, otherwise the public base URL or the API route.
func (s *Service) ImageURL(ctx context.Context, unit models.EquipmentUnit) string {
	if unit.ImagePath == "" {
		return ""
	}
	url, err := s.blobs.PresignURL(ctx, unit.ImagePath, s.opts.URLExpiry)
	if err == nil {
		return url
	}
	if !errors.Is(err, storage.ErrUnsupported) {
		s.logger.Warn("presign image url", zap.String("key", unit.ImagePath), zap.Error(err))
	}
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + unit.ImagePath
	}
	return "/api/equipment/" + unit.ID + "/image"
}

// live returns a unit that has not been soft-deleted.
func (s *Service) live(ctx context.Context, id string) (models.EquipmentUnit, error) {
	unit, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return models.EquipmentUnit{}, err
	}
	if unit.Deleted {
		return models.EquipmentUnit{}, fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	return unit, nil
}

func (s *Service) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := s.opts.Retry
	policy.OnRetry = func(err error, wait time.Duration) {
		s.metrics.WriteRetry(op)
		s.logger.Warn("retrying store write", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}
	return repository.RetryErr(ctx, policy, fn)
}

func applyInput(unit *models.EquipmentUnit, in models.EquipmentInput, now time.Time) {
	unit.EquipmentID = strings.TrimSpace(in.EquipmentID)
	unit.Name = strings.TrimSpace(in.Name)
	unit.Category = strings.TrimSpace(in.Category)
	unit.SerialNumber = strings.TrimSpace(in.SerialNumber)
	unit.Value = in.Value
	unit.Location = strings.TrimSpace(in.Location)
	unit.PowerVoltage = in.PowerVoltage
	unit.Voltage = in.Voltage
	unit.Issues = in.Issues
	unit.Action = in.Action
	if in.InStock != nil {
		unit.InStock = *in.InStock
	}
	unit.LastUpdated = now
	unit.UpdatedAt = now
}

// imageName keeps the base name of an upload with spaces replaced.
func imageName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.Join(strings.Fields(base), "-")
}
