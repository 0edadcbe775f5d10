package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
)

// openFilter matches open loans. Documents written before the open flag
// existed are recognised by their status and missing closing date.
func openFilter(kind models.LoanKind) bson.M {
	statuses := bson.A{string(models.LoanBorrowed), string(models.LoanOverdue)}
	if kind == models.KindRental {
		statuses = bson.A{string(models.LoanActive)}
	}
	return bson.M{"$or": bson.A{
		bson.M{"open": true},
		bson.M{
			"open":                    bson.M{"$exists": false},
			loanFields[kind].ClosedAt: nil,
			"status":                  bson.M{"$in": statuses},
		},
	}}
}

// GetLoan returns a loan, deleted or not.
func (r *MongoDBRepository) GetLoan(ctx context.Context, kind models.LoanKind, id string) (models.LoanRecord, error) {
	coll, err := r.loanCollection(kind)
	if err != nil {
		return models.LoanRecord{}, err
	}

	var doc loanDoc
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LoanRecord{}, fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	if err != nil {
		return models.LoanRecord{}, fmt.Errorf("failed to load %s %s: %w", kind, id, classify(err))
	}
	return doc.toDomain(kind), nil
}

// CreateLoanRecord inserts a loan. A retried insert of the same ID succeeds;
// a second open loan on the unit trips the partial unique index.
func (r *MongoDBRepository) CreateLoanRecord(ctx context.Context, record models.LoanRecord) error {
	coll, err := r.loanCollection(record.Kind)
	if err != nil {
		return err
	}

	_, err = coll.InsertOne(ctx, loanDocument(record))
	if mongo.IsDuplicateKeyError(err) {
		n, countErr := coll.CountDocuments(ctx, bson.M{"_id": record.ID})
		if countErr == nil && n > 0 {
			return nil
		}
		return fmt.Errorf("equipment %s: %w", record.EquipmentID, models.ErrAlreadyOnLoan)
	}
	if err != nil {
		return writeFailure("insert "+string(record.Kind), err)
	}
	return nil
}

// UpdateLoanRecord applies a patch and keeps the open flag in step.
func (r *MongoDBRepository) UpdateLoanRecord(ctx context.Context, kind models.LoanKind, id string, patch models.LoanPatch, at time.Time) error {
	coll, err := r.loanCollection(kind)
	if err != nil {
		return err
	}

	current, err := r.GetLoan(ctx, kind, id)
	if err != nil {
		return err
	}
	patch.Apply(&current)
	current.UpdatedAt = at

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": patchFields(kind, patch, current)})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("equipment %s: %w", current.EquipmentID, models.ErrAlreadyOnLoan)
	}
	if err != nil {
		return writeFailure("update "+string(kind), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

// DiscardLoanRecord hard-deletes a record.
func (r *MongoDBRepository) DiscardLoanRecord(ctx context.Context, kind models.LoanKind, id string) error {
	coll, err := r.loanCollection(kind)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return writeFailure("discard "+string(kind), err)
	}
	return nil
}

// SoftDeleteLoan flags a loan as deleted.
func (r *MongoDBRepository) SoftDeleteLoan(ctx context.Context, kind models.LoanKind, id string, at time.Time) error {
	coll, err := r.loanCollection(kind)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"deleted": true, "deletedAt": at, "updatedAt": at, "open": false}}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return writeFailure("delete "+string(kind), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

// QueryLoanRecords lists loans of one kind matching the filter.
func (r *MongoDBRepository) QueryLoanRecords(ctx context.Context, kind models.LoanKind, filter models.LoanFilter, order repository.OrderBy) ([]models.LoanRecord, error) {
	coll, err := r.loanCollection(kind)
	if err != nil {
		return nil, err
	}
	names := loanFields[kind]

	clauses := bson.A{}
	if !filter.IncludeDeleted {
		clauses = append(clauses, bson.M{"deleted": bson.M{"$ne": true}})
	}
	if filter.EquipmentID != "" {
		clauses = append(clauses, bson.M{"equipmentId": filter.EquipmentID})
	}
	if filter.OpenOnly {
		clauses = append(clauses, openFilter(kind))
	}
	if filter.StartFrom != nil || filter.StartTo != nil {
		window := bson.M{}
		if filter.StartFrom != nil {
			window["$gte"] = *filter.StartFrom
		}
		if filter.StartTo != nil {
			window["$lte"] = *filter.StartTo
		}
		clauses = append(clauses, bson.M{names.StartDate: window})
	}
	query := bson.M{}
	if len(clauses) > 0 {
		query["$and"] = clauses
	}

	direction := -1
	if order.Ascending {
		direction = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: sortField(kind, order.Field), Value: direction}, {Key: "_id", Value: 1}})

	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, classify(err))
	}
	defer cursor.Close(ctx)

	records := make([]models.LoanRecord, 0)
	for cursor.Next(ctx) {
		var doc loanDoc
		if err := cursor.Decode(&doc); err != nil {
			r.logger.Warn("skipping undecodable loan document", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		record := doc.toDomain(kind)
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", kind, classify(err))
	}
	return records, nil
}

func sortField(kind models.LoanKind, field string) string {
	switch field {
	case "dueDate":
		return loanFields[kind].DueDate
	case "createdAt":
		return "createdAt"
	default:
		return loanFields[kind].StartDate
	}
}

// CountOpenLoans counts open, non-deleted loans of either kind on a unit.
func (r *MongoDBRepository) CountOpenLoans(ctx context.Context, equipmentID string) (int, error) {
	total := 0
	for _, kind := range []models.LoanKind{models.KindBorrowing, models.KindRental} {
		coll, err := r.loanCollection(kind)
		if err != nil {
			return 0, err
		}
		query := bson.M{"$and": bson.A{
			bson.M{"equipmentId": equipmentID},
			bson.M{"deleted": bson.M{"$ne": true}},
			openFilter(kind),
		}}
		n, err := coll.CountDocuments(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("failed to count open %s: %w", kind, classify(err))
		}
		total += int(n)
	}
	return total, nil
}
