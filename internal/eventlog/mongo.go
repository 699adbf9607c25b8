package eventlog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/redis/go-redis/v9"
)

const (
	envelopeCollection = "event_log"
	counterCollection  = "event_log_counters"
	offsetCollection   = "consumer_offsets"
	notifyChannel      = "weaver:eventlog:append"
)

// MongoLog is the durable Log backend: MongoDB holds the envelopes and the
// dense offset counter, and Redis Pub/Sub notifies other processes that
// new offsets exist so they can ReadFrom without polling.
type MongoLog struct {
	db     *mongo.Database
	rdb    *redis.Client
	nodeID string

	mu   sync.Mutex
	subs map[int]*memSub
	nSub int

	cancelNotify context.CancelFunc
	offsets      *mongoOffsetStore
}

// NewMongoLog opens a durable Log against db, using rdb to notify other
// processes of new appends. nodeID identifies this process so it can
// ignore its own notifications (it already delivered them synchronously).
func NewMongoLog(ctx context.Context, db *mongo.Database, rdb *redis.Client, nodeID string) (*MongoLog, error) {
	if err := EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}
	l := &MongoLog{
		db:      db,
		rdb:     rdb,
		nodeID:  nodeID,
		subs:    make(map[int]*memSub),
		offsets: &mongoOffsetStore{db: db},
	}
	notifyCtx, cancel := context.WithCancel(context.Background())
	l.cancelNotify = cancel
	go l.listenNotify(notifyCtx)
	return l, nil
}

// EnsureIndexes creates the event log's idempotent indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(envelopeCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "offset", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", envelopeCollection, err)
	}
	_, err = db.Collection(envelopeCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "offset", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", envelopeCollection, err)
	}
	_, err = db.Collection(offsetCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "consumer", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", offsetCollection, err)
	}
	return nil
}

type counterDoc struct {
	Key   string `bson:"key"`
	Value int64  `bson:"value"`
}

// Append reserves the next dense offset via an atomic counter upsert,
// inserts the envelope, and notifies both local subscribers and (via
// Redis) other processes.
func (l *MongoLog) Append(ctx context.Context, e Envelope) (Envelope, error) {
	var counter counterDoc
	err := l.db.Collection(counterCollection).FindOneAndUpdate(
		ctx,
		bson.M{"key": "offset"},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return Envelope{}, fmt.Errorf("reserve offset: %w", err)
	}
	e.Offset = counter.Value

	if _, err := l.db.Collection(envelopeCollection).InsertOne(ctx, e); err != nil {
		return Envelope{}, fmt.Errorf("insert envelope: %w", err)
	}

	if err := l.deliverLocal(ctx, e); err != nil {
		return e, err
	}
	l.publishNotify(ctx, e.Offset)
	return e, nil
}

// deliverLocal fans e out to every local subscriber, blocking the caller
// (the writer, or the notify-listen loop for foreign appends) while a
// subscriber's buffer is full rather than dropping the envelope — both Log
// backends must give subscribers the same delivery guarantee regardless of
// load. A subscriber that unsubscribes while deliverLocal is waiting on it
// is skipped via its done channel rather than a closed-channel send.
func (l *MongoLog) deliverLocal(ctx context.Context, e Envelope) error {
	l.mu.Lock()
	subs := make([]*memSub, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- e:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *MongoLog) publishNotify(ctx context.Context, offset int64) {
	if l.rdb == nil {
		return
	}
	msg := fmt.Sprintf("%s:%d", l.nodeID, offset)
	if err := l.rdb.Publish(ctx, notifyChannel, msg).Err(); err != nil {
		log.Printf("eventlog: redis publish failed: %v", err)
	}
}

// listenNotify subscribes to the cross-process notify channel and, on
// every foreign append, pulls new envelopes from Mongo and fans them out
// to local subscribers. It never trusts the payload beyond "something new
// may exist" and always re-reads from Mongo.
func (l *MongoLog) listenNotify(ctx context.Context) {
	if l.rdb == nil {
		return
	}
	sub := l.rdb.Subscribe(ctx, notifyChannel)
	defer sub.Close()

	var lastSeen int64
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			entries, err := l.ReadFrom(readCtx, lastSeen, 0)
			cancel()
			if err != nil {
				log.Printf("eventlog: notify re-read failed: %v", err)
				continue
			}
			for _, e := range entries {
				if e.ProducerID == l.nodeID {
					// Already delivered synchronously by Append.
					lastSeen = e.Offset
					continue
				}
				if err := l.deliverLocal(ctx, e); err != nil {
					return
				}
				lastSeen = e.Offset
			}
		}
	}
}

func (l *MongoLog) ReadFrom(ctx context.Context, after int64, limit int) ([]Envelope, error) {
	opts := options.Find().SetSort(bson.D{{Key: "offset", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := l.db.Collection(envelopeCollection).Find(ctx, bson.M{"offset": bson.M{"$gt": after}}, opts)
	if err != nil {
		return nil, fmt.Errorf("read from offset %d: %w", after, err)
	}
	defer cur.Close(ctx)

	var out []Envelope
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode envelopes: %w", err)
	}
	return out, nil
}

func (l *MongoLog) Subscribe(ctx context.Context) *Subscription {
	l.mu.Lock()
	id := l.nSub
	l.nSub++
	s := &memSub{ch: make(chan Envelope, subBuffer), done: make(chan struct{})}
	l.subs[id] = s
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(s.done)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return &Subscription{C: s.ch, cancel: cancel}
}

func (l *MongoLog) Query(ctx context.Context, f Filter) ([]Envelope, error) {
	filter := bson.M{"offset": bson.M{"$gt": f.FromOffset}}
	if f.RunID != "" {
		filter["run_id"] = f.RunID
	}
	if len(f.Types) > 0 {
		filter["type"] = bson.M{"$in": f.Types}
	}
	opts := options.Find().SetSort(bson.D{{Key: "offset", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := l.db.Collection(envelopeCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer cur.Close(ctx)

	var out []Envelope
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode envelopes: %w", err)
	}
	return out, nil
}

func (l *MongoLog) Head(ctx context.Context) (int64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "offset", Value: -1}})
	var e Envelope
	err := l.db.Collection(envelopeCollection).FindOne(ctx, bson.M{}, opts).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("head: %w", err)
	}
	return e.Offset, nil
}

func (l *MongoLog) Offsets() OffsetStore { return l.offsets }

func (l *MongoLog) Close() error {
	l.cancelNotify()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, s := range l.subs {
		close(s.done)
		delete(l.subs, id)
	}
	return nil
}

type mongoOffsetStore struct {
	db *mongo.Database
}

type offsetDoc struct {
	Consumer string `bson:"consumer"`
	Offset   int64  `bson:"offset"`
}

func (s *mongoOffsetStore) Get(ctx context.Context, consumer string) (int64, error) {
	var doc offsetDoc
	err := s.db.Collection(offsetCollection).FindOne(ctx, bson.M{"consumer": consumer}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get offset for %s: %w", consumer, err)
	}
	return doc.Offset, nil
}

func (s *mongoOffsetStore) Set(ctx context.Context, consumer string, offset int64) error {
	_, err := s.db.Collection(offsetCollection).UpdateOne(
		ctx,
		bson.M{"consumer": consumer},
		bson.M{"$set": bson.M{"offset": offset}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set offset for %s: %w", consumer, err)
	}
	return nil
}
