package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

func (r *MongoDBRepository) equipment() *mongo.Collection {
	return r.db.Collection(equipmentCollection)
}

// GetEquipment returns a unit, deleted or not.
func (r *MongoDBRepository) GetEquipment(ctx context.Context, id string) (models.EquipmentUnit, error) {
	var doc equipmentDoc
	err := r.equipment().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.EquipmentUnit{}, fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("failed to load equipment %s: %w", id, classify(err))
	}
	return doc.toDomain(), nil
}

// CreateEquipment inserts a unit. A retried insert of the same ID succeeds.
func (r *MongoDBRepository) CreateEquipment(ctx context.Context, unit models.EquipmentUnit) error {
	doc := equipmentFields(unit)
	doc["_id"] = unit.ID

	_, err := r.equipment().InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return writeFailure("insert equipment", err)
	}
	return nil
}

// UpdateEquipment replaces the stored attributes of a unit.
func (r *MongoDBRepository) UpdateEquipment(ctx context.Context, unit models.EquipmentUnit) error {
	res, err := r.equipment().UpdateOne(ctx, bson.M{"_id": unit.ID}, bson.M{"$set": equipmentFields(unit)})
	if err != nil {
		return writeFailure("update equipment", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("equipment %s: %w", unit.ID, models.ErrNotFound)
	}
	return nil
}

// UpdateEquipmentStatus sets the status and touches the timestamps.
func (r *MongoDBRepository) UpdateEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, at time.Time) error {
	update := bson.M{"$set": bson.M{"status": string(status), "lastUpdated": at, "updatedAt": at}}
	res, err := r.equipment().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return writeFailure("update equipment status", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// UpdateEquipmentStatusFrom sets the status only while the stored label still
// reads as from. A unit already at to is left as is, so a retried write
// succeeds.
func (r *MongoDBRepository) UpdateEquipmentStatusFrom(ctx context.Context, id string, from, to models.EquipmentStatus, at time.Time) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": bson.A{statusPattern(from), statusPattern(to)}},
	}
	update := bson.M{"$set": bson.M{"status": string(to), "lastUpdated": at, "updatedAt": at}}
	res, err := r.equipment().UpdateOne(ctx, filter, update)
	if err != nil {
		return writeFailure("update equipment status", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	unit, err := r.GetEquipment(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("equipment %s is %s, not %s: %w", id, unit.Status, from, models.ErrStatusChanged)
}

// statusPattern matches every stored spelling of status: any case, with
// spaces anywhere, aliases included.
func statusPattern(status models.EquipmentStatus) primitive.Regex {
	labels := models.StatusLabels(status)
	if len(labels) == 0 {
		labels = []string{strings.ToLower(string(status))}
	}
	alts := make([]string, 0, len(labels))
	for _, label := range labels {
		chars := make([]string, 0, len(label))
		for _, c := range label {
			chars = append(chars, regexp.QuoteMeta(string(c)))
		}
		alts = append(alts, strings.Join(chars, `\s*`))
	}
	return primitive.Regex{Pattern: `^\s*(?:` + strings.Join(alts, "|") + `)\s*$`, Options: "i"}
}

// SoftDeleteEquipment flags a unit as deleted.
func (r *MongoDBRepository) SoftDeleteEquipment(ctx context.Context, id string, at time.Time) error {
	update := bson.M{"$set": bson.M{"deleted": true, "deletedAt": at, "updatedAt": at}}
	res, err := r.equipment().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return writeFailure("delete equipment", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// QueryEquipment lists units matching the filter ordered by equipment code.
func (r *MongoDBRepository) QueryEquipment(ctx context.Context, filter models.EquipmentFilter) ([]models.EquipmentUnit, error) {
	query := bson.M{}
	if !filter.IncludeDeleted {
		query["deleted"] = bson.M{"$ne": true}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.EquipmentID != "" {
		query["equipmentId"] = filter.EquipmentID
	}

	opts := options.Find().SetSort(bson.D{{Key: "equipmentId", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.equipment().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query equipment: %w", classify(err))
	}
	defer cursor.Close(ctx)

	units := make([]models.EquipmentUnit, 0)
	for cursor.Next(ctx) {
		var doc equipmentDoc
		if err := cursor.Decode(&doc); err != nil {
			r.logger.Warn("skipping undecodable equipment document", zap.Error(err))
			continue
		}
		unit := doc.toDomain()
		// Stored labels vary in case and spacing, so status is matched after normalisation.
		if filter.Status != "" && unit.Status != filter.Status {
			continue
		}
		units = append(units, unit)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read equipment: %w", classify(err))
	}
	return units, nil
}
