package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// SaveReportSnapshot upserts a snapshot by ID, so rerunning a day replaces it.
func (r *MongoDBRepository) SaveReportSnapshot(ctx context.Context, snapshot models.ReportSnapshot) error {
	coll := r.db.Collection(snapshotCollection)
	opts := options.Replace().SetUpsert(true)
	if _, err := coll.ReplaceOne(ctx, bson.M{"_id": snapshot.ID}, snapshot, opts); err != nil {
		return writeFailure("save report snapshot", err)
	}
	return nil
}

// ListReportSnapshots returns the newest snapshots first.
func (r *MongoDBRepository) ListReportSnapshots(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.db.Collection(snapshotCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query report snapshots: %w", classify(err))
	}
	defer cursor.Close(ctx)

	snapshots := make([]models.ReportSnapshot, 0)
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode report snapshots: %w", classify(err))
	}
	return snapshots, nil
}
