package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
)

const (
	equipmentCollection = "equipment"
	borrowingCollection = "borrowings"
	rentalCollection    = "rentals"
	userCollection      = "users"
	snapshotCollection  = "report_snapshots"
)

// Options configures the MongoDB repository.
type Options struct {
	URI          string
	Database     string
	Transactions bool
}

// MongoDBRepository implements repository.Store on MongoDB.
type MongoDBRepository struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	logger       *zap.Logger
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository connects, pings and makes sure the indexes exist.
func NewMongoDBRepository(ctx context.Context, opts Options, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(opts.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &MongoDBRepository{
		client:       client,
		db:           client.Database(opts.Database),
		transactions: opts.Transactions,
		logger:       logger.Named("repo.mongodb"),
	}

	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

// EnsureIndexes creates the indexes the store relies on. It is idempotent.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	oneOpenLoan := mongo.IndexModel{
		Keys: bson.D{{Key: "equipmentId", Value: 1}},
		Options: options.Index().
			SetName("one_open_loan_per_unit").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"open": true}),
	}

	indexes := map[string][]mongo.IndexModel{
		equipmentCollection: {
			{Keys: bson.D{{Key: "equipmentId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deleted", Value: 1}}},
		},
		borrowingCollection: {
			oneOpenLoan,
			{Keys: bson.D{{Key: "borrowDate", Value: -1}}},
		},
		rentalCollection: {
			oneOpenLoan,
			{Keys: bson.D{{Key: "rentalStart", Value: -1}}},
		},
		userCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_email")},
		},
		snapshotCollection: {
			{Keys: bson.D{{Key: "date", Value: -1}}},
		},
	}

	for coll, specs := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// RunInTransaction runs fn inside a multi-document transaction. The driver
// retries fn on transient transaction errors.
func (r *MongoDBRepository) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.transactions {
		return repository.ErrTransactionsUnsupported
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", classify(err))
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		return fmt.Errorf("transaction: %w", classify(err))
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) loanCollection(kind models.LoanKind) (*mongo.Collection, error) {
	switch kind {
	case models.KindBorrowing:
		return r.db.Collection(borrowingCollection), nil
	case models.KindRental:
		return r.db.Collection(rentalCollection), nil
	default:
		return nil, fmt.Errorf("unknown loan kind %q: %w", kind, models.ErrValidation)
	}
}

// classify tags network and timeout failures as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrTransient) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", repository.ErrTransient, err)
	}
	return err
}

func writeFailure(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, models.ErrWriteFailure, classify(err))
}
