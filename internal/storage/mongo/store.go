// Package mongo stores monitors as documents with an embedded, size-capped log array.
//
// Appends use $push with $each/$slice so eviction of the oldest entries and the
// summary rewrite happen in a single atomic document update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

const collectionName = "monitors"

type monitorDoc struct {
	ID           string     `bson:"_id"`
	OwnerID      string     `bson:"userId"`
	URL          string     `bson:"url"`
	Interval     int        `bson:"interval"`
	Status       string     `bson:"status"`
	ResponseTime *int64     `bson:"responseTime"`
	LastChecked  *time.Time `bson:"lastChecked"`
	CreatedAt    time.Time  `bson:"createdAt"`
	Logs         []logDoc   `bson:"logs,omitempty"`
}

type logDoc struct {
	Timestamp    time.Time `bson:"timestamp"`
	Status       string    `bson:"status"`
	ResponseTime int64     `bson:"responseTime"`
	Interval     int       `bson:"interval"`
}

// MongoStore implements the storage.Storer interface for MongoDB.
type MongoStore struct {
	client   *mongo.Client
	monitors *mongo.Collection
}

// New connects to uri, selects database and ensures indexes exist.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	store := &MongoStore{
		client:   client,
		monitors: client.Database(database).Collection(collectionName),
	}
	_, err = store.monitors.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "lastChecked", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateMonitor implements the Storer interface.
func (s *MongoStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.StatusUnknown
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	doc := toDoc(m)
	if _, err := s.monitors.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert monitor: %w", err)
	}
	return nil
}

// GetMonitor implements the Storer interface.
func (s *MongoStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return s.findOne(ctx, id)
}

// LookupMonitor implements the Storer interface.
func (s *MongoStore) LookupMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return s.findOne(ctx, id, options.FindOne().SetProjection(bson.M{"logs": 0}))
}

func (s *MongoStore) findOne(ctx context.Context, id string, opts ...*options.FindOneOptions) (*models.Monitor, error) {
	var doc monitorDoc
	err := s.monitors.FindOne(ctx, bson.M{"_id": id}, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return fromDoc(&doc), nil
}

// FindDue implements the MonitorStore interface.
func (s *MongoStore) FindDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"lastChecked": nil},
			bson.M{"lastChecked": bson.M{"$lte": now.Add(-models.MinCheckSpacing)}},
		},
		"$nor": bson.A{
			bson.M{"interval": 0, "lastChecked": bson.M{"$ne": nil}},
		},
	}
	opts := options.Find().
		SetProjection(bson.M{"logs": 0}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.monitors.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due monitors: %w", err)
	}
	defer cur.Close(ctx)

	var monitors []models.Monitor
	for cur.Next(ctx) {
		var doc monitorDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode monitor: %w", err)
		}
		monitors = append(monitors, *fromDoc(&doc))
	}
	return monitors, cur.Err()
}

// AppendLog implements the MonitorStore interface.
func (s *MongoStore) AppendLog(ctx context.Context, monitorID string, entry models.LogEntry) error {
	return s.update(ctx, monitorID, bson.M{"$push": pushLog(entry)})
}

// UpdateSummary implements the MonitorStore interface.
func (s *MongoStore) UpdateSummary(ctx context.Context, monitorID string, summary models.Summary) error {
	return s.update(ctx, monitorID, bson.M{"$set": setSummary(summary)})
}

// RecordCheck implements the MonitorStore interface.
func (s *MongoStore) RecordCheck(ctx context.Context, monitorID string, entry models.LogEntry, summary models.Summary) error {
	return s.update(ctx, monitorID, bson.M{
		"$push": pushLog(entry),
		"$set":  setSummary(summary),
	})
}

func (s *MongoStore) update(ctx context.Context, monitorID string, update bson.M) error {
	res, err := s.monitors.UpdateOne(ctx, bson.M{"_id": monitorID}, update)
	if err != nil {
		return fmt.Errorf("failed to update monitor: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func pushLog(entry models.LogEntry) bson.M {
	return bson.M{
		"logs": bson.M{
			"$each": bson.A{logDoc{
				Timestamp:    entry.Timestamp.UTC(),
				Status:       string(entry.Status),
				ResponseTime: entry.ResponseTimeMS,
				Interval:     entry.IntervalMinutes,
			}},
			"$slice": -models.MaxLogEntries,
		},
	}
}

func setSummary(summary models.Summary) bson.M {
	return bson.M{
		"status":       string(summary.Status),
		"responseTime": summary.ResponseTimeMS,
		"lastChecked":  summary.LastChecked.UTC(),
	}
}

func toDoc(m *models.Monitor) monitorDoc {
	doc := monitorDoc{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		URL:          m.URL,
		Interval:     m.IntervalMinutes,
		Status:       string(m.Status),
		ResponseTime: m.ResponseTimeMS,
		LastChecked:  m.LastChecked,
		CreatedAt:    m.CreatedAt.UTC(),
	}
	for _, e := range m.Logs {
		doc.Logs = append(doc.Logs, logDoc{
			Timestamp:    e.Timestamp.UTC(),
			Status:       string(e.Status),
			ResponseTime: e.ResponseTimeMS,
			Interval:     e.IntervalMinutes,
		})
	}
	return doc
}

func fromDoc(doc *monitorDoc) *models.Monitor {
	m := &models.Monitor{
		ID:              doc.ID,
		OwnerID:         doc.OwnerID,
		URL:             doc.URL,
		IntervalMinutes: doc.Interval,
		Status:          models.Status(doc.Status),
		ResponseTimeMS:  doc.ResponseTime,
		CreatedAt:       doc.CreatedAt.UTC(),
	}
	if doc.LastChecked != nil {
		lc := doc.LastChecked.UTC()
		m.LastChecked = &lc
	}
	for _, l := range doc.Logs {
		m.Logs = append(m.Logs, models.LogEntry{
			Timestamp:       l.Timestamp.UTC(),
			Status:          models.Status(l.Status),
			ResponseTimeMS:  l.ResponseTime,
			IntervalMinutes: l.Interval,
		})
	}
	return m
}
