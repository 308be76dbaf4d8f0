package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/repository"
)

const (
	sessionsColl        = "inventory_sessions"
	assetsColl          = "expected_assets"
	readingsColl        = "readings"
	readingSessionsColl = "reading_sessions"
	sessionReadingsColl = "session_readings"
)

// MongoDBRepository implements repository.Store on top of MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	// afterSessionRemoved runs between removing a session and re-checking its readings.
	afterSessionRemoved func(sessionID string)
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository connects, pings and ensures the indexes the store
// relies on for its uniqueness guarantees.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}

	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		sessionsColl: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		assetsColl: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "asset_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "match_keys", Value: 1}}},
		},
		readingsColl: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "identifier", Value: 1}}, Options: options.Index().SetUnique(true)},
			// one found reading per expected asset; unregistered readings carry a null asset id
			{
				Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "expected_asset_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("one_reading_per_asset").
					SetPartialFilterExpression(bson.M{"expected_asset_id": bson.M{"$type": "string"}}),
			},
		},
		readingSessionsColl: {
			// at most one ACTIVE device session per user
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("one_active_per_user").
					SetPartialFilterExpression(bson.M{"status": models.DeviceActive}),
			},
		},
		sessionReadingsColl: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "read_at", Value: 1}}},
		},
	}

	for coll, specs := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// CreateSession inserts a new inventory session.
func (r *MongoDBRepository) CreateSession(ctx context.Context, session models.InventorySession) error {
	if _, err := r.db.Collection(sessionsColl).InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrSessionConflict
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession loads one inventory session.
func (r *MongoDBRepository) GetSession(ctx context.Context, id string) (*models.InventorySession, error) {
	var session models.InventorySession
	if err := r.db.Collection(sessionsColl).FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

// ListSessions returns sessions, newest first.
func (r *MongoDBRepository) ListSessions(ctx context.Context) ([]models.InventorySession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	out := make([]models.InventorySession, 0)
	if err := r.findAll(ctx, sessionsColl, bson.M{}, opts, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// UpdateSessionStatus moves a session from one status to another, failing
// with repository.ErrStaleStatus if it is no longer in from.
func (r *MongoDBRepository) UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) error {
	return r.compareAndSetStatus(ctx, sessionsColl, id, string(from), string(to), at)
}

// DeleteSession removes a session and its expected assets. Sessions with
// readings are kept: the readings are counted again once the session is
// gone, and a reading that slipped in between restores it.
func (r *MongoDBRepository) DeleteSession(ctx context.Context, id string) error {
	if err := r.ensureNoReadings(ctx, id); err != nil {
		return err
	}

	var session models.InventorySession
	err := r.db.Collection(sessionsColl).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		return notFound(err, "session")
	}
	if r.afterSessionRemoved != nil {
		r.afterSessionRemoved(id)
	}

	if err := r.ensureNoReadings(ctx, id); err != nil {
		if _, restoreErr := r.db.Collection(sessionsColl).InsertOne(ctx, session); restoreErr != nil {
			r.logger.Error("failed to restore session", zap.String("session_id", id), zap.Error(restoreErr))
			return fmt.Errorf("restore session: %w", restoreErr)
		}
		return err
	}

	if _, err := r.db.Collection(assetsColl).DeleteMany(ctx, bson.M{"session_id": id}); err != nil {
		return fmt.Errorf("delete expected assets: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) ensureNoReadings(ctx context.Context, sessionID string) error {
	n, err := r.db.Collection(readingsColl).CountDocuments(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("count readings: %w", err)
	}
	if n > 0 {
		return models.ErrSessionHasReadings
	}
	return nil
}

// UpsertExpectedAsset inserts or updates an expected asset by asset code.
func (r *MongoDBRepository) UpsertExpectedAsset(ctx context.Context, asset models.ExpectedAsset) (bool, error) {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	filter := bson.M{"session_id": asset.SessionID, "asset_code": asset.AssetCode}
	update := bson.M{
		"$set": bson.M{
			"description":    asset.Description,
			"rfid_code":      asset.RFIDCode,
			"barcode":        asset.Barcode,
			"expected_ul":    asset.ExpectedUL,
			"expected_ua":    asset.ExpectedUA,
			"category":       asset.Category,
			"is_written_off": asset.IsWrittenOff,
			"match_keys":     asset.Keys(),
			"updated_at":     asset.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        asset.ID,
			"verified":   false,
			"created_at": asset.CreatedAt,
		},
	}

	res, err := r.db.Collection(assetsColl).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert expected asset %s: %w", asset.AssetCode, err)
	}
	return res.UpsertedCount == 1, nil
}

// ListExpectedAssets returns one filtered page of expected assets.
func (r *MongoDBRepository) ListExpectedAssets(ctx context.Context, sessionID string, filter models.ExpectedAssetFilter) ([]models.ExpectedAsset, int64, error) {
	query := bson.M{"session_id": sessionID}
	if filter.Verified != nil {
		query["verified"] = *filter.Verified
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"asset_code": pattern},
			bson.M{"description": pattern},
		}
	}

	coll := r.db.Collection(assetsColl)
	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count expected assets: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "asset_code", Value: 1}}).
		SetSkip(int64(filter.Skip))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	out := make([]models.ExpectedAsset, 0)
	if err := r.findAll(ctx, assetsColl, query, opts, &out); err != nil {
		return nil, 0, fmt.Errorf("list expected assets: %w", err)
	}
	return out, total, nil
}

// AllExpectedAssets returns every expected asset of a session.
func (r *MongoDBRepository) AllExpectedAssets(ctx context.Context, sessionID string) ([]models.ExpectedAsset, error) {
	out := make([]models.ExpectedAsset, 0)
	opts := options.Find().SetSort(bson.D{{Key: "asset_code", Value: 1}})
	if err := r.findAll(ctx, assetsColl, bson.M{"session_id": sessionID}, opts, &out); err != nil {
		return nil, fmt.Errorf("load expected assets: %w", err)
	}
	return out, nil
}

// FindExpectedAsset resolves a scanned identifier against the asset code,
// RFID code or barcode of the session's expected assets.
func (r *MongoDBRepository) FindExpectedAsset(ctx context.Context, sessionID, identifier string) (*models.ExpectedAsset, error) {
	filter := bson.M{"session_id": sessionID, "match_keys": models.NormalizeIdentifier(identifier)}
	var asset models.ExpectedAsset
	if err := r.db.Collection(assetsColl).FindOne(ctx, filter).Decode(&asset); err != nil {
		return nil, notFound(err, "expected asset")
	}
	return &asset, nil
}

// MarkAssetVerified flags an expected asset as found.
func (r *MongoDBRepository) MarkAssetVerified(ctx context.Context, assetID string, at time.Time) error {
	res, err := r.db.Collection(assetsColl).UpdateOne(ctx,
		bson.M{"_id": assetID},
		bson.M{"$set": bson.M{"verified": true, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("mark asset verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// InsertReading stores an immutable reading.
func (r *MongoDBRepository) InsertReading(ctx context.Context, reading models.Reading) error {
	if _, err := r.db.Collection(readingsColl).InsertOne(ctx, reading); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrSessionConflict
		}
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// FindReading returns the reading of an identifier within a session.
func (r *MongoDBRepository) FindReading(ctx context.Context, sessionID, identifier string) (*models.Reading, error) {
	var reading models.Reading
	err := r.db.Collection(readingsColl).
		FindOne(ctx, bson.M{"session_id": sessionID, "identifier": identifier}).
		Decode(&reading)
	if err != nil {
		return nil, notFound(err, "reading")
	}
	return &reading, nil
}

// FindAssetReading returns the reading that matched an expected asset.
func (r *MongoDBRepository) FindAssetReading(ctx context.Context, sessionID, assetID string) (*models.Reading, error) {
	var reading models.Reading
	err := r.db.Collection(readingsColl).
		FindOne(ctx, bson.M{"session_id": sessionID, "expected_asset_id": assetID}).
		Decode(&reading)
	if err != nil {
		return nil, notFound(err, "reading")
	}
	return &reading, nil
}

// ListReadings returns the readings of a session in read order.
func (r *MongoDBRepository) ListReadings(ctx context.Context, sessionID string) ([]models.Reading, error) {
	out := make([]models.Reading, 0)
	opts := options.Find().SetSort(bson.D{{Key: "read_at", Value: 1}})
	if err := r.findAll(ctx, readingsColl, bson.M{"session_id": sessionID}, opts, &out); err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return out, nil
}

// Counts gathers the raw counters for the statistics projection.
func (r *MongoDBRepository) Counts(ctx context.Context, sessionID string) (models.SessionCounts, error) {
	var c models.SessionCounts
	var err error

	assets := r.db.Collection(assetsColl)
	readings := r.db.Collection(readingsColl)

	if c.Expected, err = assets.CountDocuments(ctx, bson.M{"session_id": sessionID}); err != nil {
		return c, fmt.Errorf("count expected: %w", err)
	}
	if c.WrittenOff, err = assets.CountDocuments(ctx, bson.M{"session_id": sessionID, "is_written_off": true}); err != nil {
		return c, fmt.Errorf("count written off: %w", err)
	}
	if c.Found, err = readings.CountDocuments(ctx, bson.M{"session_id": sessionID, "category": models.ReadingFound}); err != nil {
		return c, fmt.Errorf("count found: %w", err)
	}
	if c.Unregistered, err = readings.CountDocuments(ctx, bson.M{"session_id": sessionID, "category": models.ReadingUnregistered}); err != nil {
		return c, fmt.Errorf("count unregistered: %w", err)
	}
	return c, nil
}

// InsertReadingSession stores a device reading session. The partial unique
// index rejects a second ACTIVE session for the same user.
func (r *MongoDBRepository) InsertReadingSession(ctx context.Context, session models.DeviceReadingSession) error {
	if _, err := r.db.Collection(readingSessionsColl).InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrSessionConflict
		}
		return fmt.Errorf("failed to insert reading session: %w", err)
	}
	return nil
}

// GetReadingSession loads a device reading session.
func (r *MongoDBRepository) GetReadingSession(ctx context.Context, id string) (*models.DeviceReadingSession, error) {
	var session models.DeviceReadingSession
	if err := r.db.Collection(readingSessionsColl).FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, notFound(err, "reading session")
	}
	return &session, nil
}

// FindActiveReadingSession returns the stored ACTIVE session of a user.
func (r *MongoDBRepository) FindActiveReadingSession(ctx context.Context, userID string) (*models.DeviceReadingSession, error) {
	var session models.DeviceReadingSession
	err := r.db.Collection(readingSessionsColl).
		FindOne(ctx, bson.M{"user_id": userID, "status": models.DeviceActive}).
		Decode(&session)
	if err != nil {
		return nil, notFound(err, "active reading session")
	}
	return &session, nil
}

// ListActiveReadingSessions returns every stored ACTIVE session.
func (r *MongoDBRepository) ListActiveReadingSessions(ctx context.Context) ([]models.DeviceReadingSession, error) {
	out := make([]models.DeviceReadingSession, 0)
	if err := r.findAll(ctx, readingSessionsColl, bson.M{"status": models.DeviceActive}, nil, &out); err != nil {
		return nil, fmt.Errorf("list active reading sessions: %w", err)
	}
	return out, nil
}

// UpdateReadingSessionStatus is the compare-and-set counterpart of
// UpdateSessionStatus for device sessions.
func (r *MongoDBRepository) UpdateReadingSessionStatus(ctx context.Context, id string, from, to models.DeviceSessionStatus, at time.Time) error {
	return r.compareAndSetStatus(ctx, readingSessionsColl, id, string(from), string(to), at)
}

// InsertSessionReading appends a device read.
func (r *MongoDBRepository) InsertSessionReading(ctx context.Context, reading models.SessionReading) error {
	if _, err := r.db.Collection(sessionReadingsColl).InsertOne(ctx, reading); err != nil {
		return fmt.Errorf("failed to insert session reading: %w", err)
	}
	return nil
}

// ListSessionReadings returns every read of a device session in order.
func (r *MongoDBRepository) ListSessionReadings(ctx context.Context, sessionID string) ([]models.SessionReading, error) {
	out := make([]models.SessionReading, 0)
	opts := options.Find().SetSort(bson.D{{Key: "read_at", Value: 1}})
	if err := r.findAll(ctx, sessionReadingsColl, bson.M{"session_id": sessionID}, opts, &out); err != nil {
		return nil, fmt.Errorf("list session readings: %w", err)
	}
	return out, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) compareAndSetStatus(ctx context.Context, coll, id, from, to string, at time.Time) error {
	res, err := r.db.Collection(coll).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("update %s status: %w", coll, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.db.Collection(coll).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check %s existence: %w", coll, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	r.logger.Debug("stale status update", zap.String("collection", coll), zap.String("id", id), zap.String("from", from))
	return repository.ErrStaleStatus
}

func (r *MongoDBRepository) findAll(ctx context.Context, coll string, filter any, opts *options.FindOptions, out any) error {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.db.Collection(coll).Find(ctx, filter, opts)
	} else {
		cursor, err = r.db.Collection(coll).Find(ctx, filter)
	}
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
