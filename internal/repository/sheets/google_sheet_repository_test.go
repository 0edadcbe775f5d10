package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

type recordingWriter struct {
	ranges []string
	rows   [][]interface{}
	err    error
}

func (w *recordingWriter) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	if w.err != nil {
		return w.err
	}
	w.ranges = append(w.ranges, sheetRange)
	w.rows = append(w.rows, values)
	return nil
}

func TestAppendReport(t *testing.T) {
	writer := &recordingWriter{}
	exporter := NewExporter(writer, "Reports!A:L", nil)

	snapshot := models.ReportSnapshot{
		ID:   "2024-05-01",
		Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Report: models.Report{
			EquipmentStats: models.EquipmentStats{TotalEquipment: 10, AvailableEquipment: 6, InUseEquipment: 3, MaintenanceEquipment: 1},
			BorrowingStats: models.BorrowingStats{TotalBorrowings: 4, ActiveBorrowings: 2, OverdueBorrowings: 1},
			RentalStats:    models.RentalStats{TotalRentals: 2, ActiveRentals: 1, Revenue: 100},
		},
	}

	require.NoError(t, exporter.AppendReport(context.Background(), snapshot))
	require.Len(t, writer.rows, 1)
	assert.Equal(t, "Reports!A:L", writer.ranges[0])
	assert.Equal(t, []interface{}{"2024-05-01", 10, 6, 3, 1, 4, 2, 1, 2, 1, 0, "100.00"}, writer.rows[0])
}

func TestAppendReportWrapsWriterError(t *testing.T) {
	boom := errors.New("quota exceeded")
	exporter := NewExporter(&recordingWriter{err: boom}, "Reports!A:L", nil)

	err := exporter.AppendReport(context.Background(), models.ReportSnapshot{ID: "x"})
	assert.ErrorIs(t, err, boom)
}
