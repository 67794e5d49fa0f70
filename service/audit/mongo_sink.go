package audit

import (
	"context"
	"sync"
	"time"

	"PRoom/logger"
	"PRoom/service/mgo"
	"PRoom/tools/ids"
	"PRoom/tools/safe"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const DefaultCollection = "webhook_failures"

const writeTimeout = 3 * time.Second

// Inserter stores one document.
type Inserter interface {
	InsertOne(ctx context.Context, doc any) error
}

type mongoCollection struct{ c *mongo.Collection }

func (m mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := m.c.InsertOne(ctx, doc)
	return err
}

// Source hands out the collection while the database is reachable.
type Source func() (Inserter, bool)

// ManagerSource serves collection from the database held by m.
func ManagerSource(m *mgo.MongoManager, collection string) Source {
	return func() (Inserter, bool) {
		db, ok := m.TryGetDB()
		if !ok {
			return nil, false
		}
		return mongoCollection{c: db.Collection(collection)}, true
	}
}

// MongoSink inserts failures in the background. Records that cannot be
// stored go to the fallback sink, so a failure is never lost silently.
type MongoSink struct {
	src      Source
	fallback LogSink
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewMongoSink(src Source) *MongoSink {
	return &MongoSink{src: src, now: time.Now}
}

func (s *MongoSink) RecordFailure(_ context.Context, timestamp string, payload any, message string) {
	rec := FailureRecord{
		Id:        ids.GenerateString(),
		Timestamp: timestamp,
		Message:   message,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	s.wg.Add(1)
	safe.SafeGo("audit.insert", func() {
		defer s.wg.Done()
		s.insert(rec)
	})
}

// the request context may be gone by the time the insert runs
func (s *MongoSink) insert(rec FailureRecord) {
	col, ok := s.src()
	if !ok {
		s.fallback.RecordFailure(context.Background(), rec.Timestamp, rec.Payload, rec.Message)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := col.InsertOne(ctx, rec); err != nil {
		logger.Error("audit insert failed", zap.String("id", rec.Id), zap.Error(err))
		s.fallback.RecordFailure(ctx, rec.Timestamp, rec.Payload, rec.Message)
	}
}

// Flush waits for the pending inserts.
func (s *MongoSink) Flush() { s.wg.Wait() }
