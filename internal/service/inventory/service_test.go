package inventory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository/memory"
	"github.com/mamadbah2/equiptrack/internal/storage"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store, *storage.Memory) {
	t.Helper()
	store := memory.NewStore()
	blobs := storage.NewMemory()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewService(store, blobs, opts, nil), store, blobs
}

func drill(code string) models.EquipmentInput {
	return models.EquipmentInput{
		EquipmentID:  code,
		Name:         "Hammer Drill",
		Category:     "Power Tools",
		SerialNumber: "SN-" + code,
		Location:     "Warehouse A",
		Value:        250,
	}
}

func TestCreateDefaultsToAvailable(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()

	unit, err := svc.Create(ctx, drill("EQ100"))
	require.NoError(t, err)
	assert.NotEmpty(t, unit.ID)
	assert.Equal(t, models.StatusAvailable, unit.Status)
	assert.True(t, unit.InStock)
	assert.Equal(t, testNow, unit.CreatedAt)

	stored, err := store.GetEquipment(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "EQ100", stored.EquipmentID)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, models.EquipmentInput{Name: "Drill"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "equipmentId")
	assert.Contains(t, verr.Fields, "serialNumber")

	in := drill("EQ101")
	in.Status = "In Use"
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	in.Status = "Maintenance"
	unit, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMaintenance, unit.Status)
}

func TestListSearchAndPaging(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	for _, code := range []string{"EQ3", "EQ1", "EQ2"} {
		_, err := svc.Create(ctx, drill(code))
		require.NoError(t, err)
	}
	saw := drill("SAW9")
	saw.Name = "Circular Saw"
	_, err := svc.Create(ctx, saw)
	require.NoError(t, err)

	page, err := svc.List(ctx, ListQuery{Search: "drill", Page: models.PageRequest{Page: 1, Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "EQ1", page.Items[0].EquipmentID)
	assert.Equal(t, "EQ2", page.Items[1].EquipmentID)

	_, err = svc.List(ctx, ListQuery{Status: "Sleeping"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestChangeStatusRules(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()

	unit, err := svc.Create(ctx, drill("EQ100"))
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, unit.ID, "Maintenance")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMaintenance, updated.Status)

	_, err = svc.ChangeStatus(ctx, unit.ID, "Rented")
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	_, err = svc.ChangeStatus(ctx, unit.ID, "Available")
	require.NoError(t, err)

	require.NoError(t, store.CreateLoanRecord(ctx, models.LoanRecord{
		ID: "b1", Kind: models.KindBorrowing, EquipmentID: unit.ID, Status: models.LoanBorrowed, StartDate: testNow,
	}))
	_, err = svc.ChangeStatus(ctx, unit.ID, "Broken")
	assert.ErrorIs(t, err, models.ErrOpenLoan)
}

func TestDeleteRejectsOpenLoan(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	ctx := context.Background()

	unit, err := svc.Create(ctx, drill("EQ100"))
	require.NoError(t, err)
	require.NoError(t, store.CreateLoanRecord(ctx, models.LoanRecord{
		ID: "r1", Kind: models.KindRental, EquipmentID: unit.ID, Status: models.LoanActive, StartDate: testNow,
	}))

	assert.ErrorIs(t, svc.Delete(ctx, unit.ID), models.ErrOpenLoan)

	closed := testNow.Add(time.Hour)
	status := models.LoanCompleted
	require.NoError(t, store.UpdateLoanRecord(ctx, models.KindRental, "r1", models.LoanPatch{Status: &status, ClosedAt: &closed}, closed))
	require.NoError(t, svc.Delete(ctx, unit.ID))

	got, err := svc.Get(ctx, unit.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	page, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = svc.List(ctx, ListQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = svc.Update(ctx, unit.ID, drill("EQ100"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetImageReplacesPrevious(t *testing.T) {
	svc, _, blobs := newTestService(t, Options{PublicBaseURL: "https://cdn.example.com/"})
	ctx := context.Background()

	unit, err := svc.Create(ctx, drill("EQ100"))
	require.NoError(t, err)

	first, err := svc.SetImage(ctx, unit.ID, "front view.png", "image/png", strings.NewReader("one"))
	require.NoError(t, err)
	assert.Equal(t, "equipment-images/1709283600000-front-view.png", first.ImagePath)
	assert.Equal(t, "https://cdn.example.com/equipment-images/1709283600000-front-view.png", first.ImageURL)

	svc.now = func() time.Time { return testNow.Add(time.Second) }
	second, err := svc.SetImage(ctx, unit.ID, "side.png", "image/png", strings.NewReader("two"))
	require.NoError(t, err)
	assert.Equal(t, []string{second.ImagePath}, blobs.Keys())

	info, body, err := svc.OpenImage(ctx, unit.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "image/png", info.ContentType)

	cleared, err := svc.RemoveImage(ctx, unit.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.ImagePath)
	assert.Empty(t, blobs.Keys())

	_, _, err = svc.OpenImage(ctx, unit.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestImageURLFallsBackToAPIRoute(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	url := svc.ImageURL(context.Background(), models.EquipmentUnit{ID: "u1", ImagePath: "equipment-images/1-a.png"})
	assert.Equal(t, "/api/equipment/u1/image", url)
	assert.Empty(t, svc.ImageURL(context.Background(), models.EquipmentUnit{ID: "u1"}))
}

func TestAvailableUnits(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	a, err := svc.Create(ctx, drill("EQ1"))
	require.NoError(t, err)
	b, err := svc.Create(ctx, drill("EQ2"))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, b.ID, "Broken")
	require.NoError(t, err)

	units, err := svc.AvailableUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, a.ID, units[0].ID)
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "my-photo.jpg", imageName(" dir/my photo.jpg "))
	assert.Equal(t, "c.png", imageName(`C:\a\b\c.png`))
	assert.Empty(t, imageName(""))
}
