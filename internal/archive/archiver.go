// Package archive periodically copies old Event Log envelopes from the
// durable log's hot collection into gzipped NDJSON files (the envelopes
// stay in Mongo), optionally
// shipping them on to S3 (spec.md §6's persisted-state lifecycle: the
// Event Log is append-only but not meant to grow forever uncurated).
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/weaverhq/weaver/internal/eventlog"
)

// envelopeCollection must match the Event Log's own Mongo collection name
// (internal/eventlog/mongo.go); archive and log intentionally stay
// decoupled packages, so the name is duplicated rather than imported as a
// constant across a layering boundary that doesn't otherwise exist.
const envelopeCollection = "event_log"

// Archiver periodically copies envelopes older than maxAge from Mongo to
// local gzipped NDJSON files (without deleting them from Mongo), uploading each batch to S3 when an uploader
// is configured, and deleting the oldest local archives when total size
// exceeds maxBytes.
type Archiver struct {
	db       *mongo.Database
	dir      string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration

	s3     *manager.Uploader
	bucket string
	prefix string
}

// New creates an Archiver over db's event_log collection, staging batches
// under dir before optionally uploading them to S3.
func New(db *mongo.Database, dir string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		db:       db,
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// WithS3 attaches an S3 destination. bucket empty leaves S3 upload
// disabled (local staging only); it is the caller's job to only call this
// when Config.S3Bucket is non-empty.
func (a *Archiver) WithS3(ctx context.Context, region, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return a, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.s3 = manager.NewUploader(s3.NewFromConfig(cfg))
	a.bucket = bucket
	a.prefix = prefix
	return a, nil
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("event log archiver: dir=%s max=%dGB interval=%v age=%v s3=%v",
		a.dir, a.maxBytes>>30, a.interval, a.maxAge, a.bucket != "")

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cursor, err := a.loadCursor(ctx)
	if err != nil {
		log.Printf("event log archiver: load cursor: %v", err)
		return
	}

	cutoff := time.Now().Add(-a.maxAge)
	if !cursor.Before(cutoff) {
		return
	}

	envelopes, err := a.queryEnvelopes(ctx, cursor, cutoff)
	if err != nil {
		log.Printf("event log archiver: query: %v", err)
		return
	}
	if len(envelopes) == 0 {
		a.saveCursor(ctx, cutoff)
		return
	}

	batches := groupByDay(envelopes)

	for day, batch := range batches {
		path, err := a.writeBatch(day, batch)
		if err != nil {
			log.Printf("event log archiver: write %s: %v", day, err)
			return
		}

		if a.s3 != nil {
			if err := a.upload(ctx, day, path); err != nil {
				log.Printf("event log archiver: s3 upload %s: %v", day, err)
				return
			}
		}

		log.Printf("event log archiver: archived %d envelopes for %s", len(batch), day)
	}

	a.saveCursor(ctx, cutoff)
	a.rotate()
}

func (a *Archiver) loadCursor(ctx context.Context) (time.Time, error) {
	var doc struct {
		ValueTime time.Time `bson:"value_time"`
	}
	err := a.db.Collection("archive_state").FindOne(ctx, bson.M{"key": "event_log_cursor"}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return doc.ValueTime, nil
}

func (a *Archiver) saveCursor(ctx context.Context, t time.Time) {
	_, err := a.db.Collection("archive_state").UpdateOne(ctx,
		bson.M{"key": "event_log_cursor"},
		bson.M{"$set": bson.M{
			"key":        "event_log_cursor",
			"value_time": t,
			"updated_at": time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		log.Printf("event log archiver: save cursor: %v", err)
	}
}

func (a *Archiver) queryEnvelopes(ctx context.Context, from, to time.Time) ([]eventlog.Envelope, error) {
	filter := bson.M{
		"timestamp": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "offset", Value: 1}})

	cur, err := a.db.Collection(envelopeCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find envelopes: %w", err)
	}
	defer cur.Close(ctx)

	var envelopes []eventlog.Envelope
	if err := cur.All(ctx, &envelopes); err != nil {
		return nil, fmt.Errorf("decode envelopes: %w", err)
	}
	return envelopes, nil
}

func groupByDay(envelopes []eventlog.Envelope) map[string][]eventlog.Envelope {
	batches := make(map[string][]eventlog.Envelope)
	for _, e := range envelopes {
		day := e.Timestamp.UTC().Format("2006/01/02")
		batches[day] = append(batches[day], e)
	}
	return batches
}

// writeBatch writes envelopes as gzipped NDJSON to dir/event_log/YYYY/MM/DD.jsonl.gz.
func (a *Archiver) writeBatch(day string, envelopes []eventlog.Envelope) (string, error) {
	path := filepath.Join(a.dir, "event_log", day+".jsonl.gz")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range envelopes {
		if err := enc.Encode(e); err != nil {
			gz.Close()
			return "", fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	return path, nil
}

func (a *Archiver) upload(ctx context.Context, day, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(a.prefix, "event_log", day+".jsonl.gz"))
	_, err = a.s3.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// rotate deletes the oldest local archive files until total size is under
// maxBytes. S3-uploaded copies are left untouched — rotation only bounds
// local disk usage.
func (a *Archiver) rotate() {
	root := filepath.Join(a.dir, "event_log")

	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	// Sort oldest first (path is YYYY/MM/DD so lexicographic = chronological).
	sort.Slice(files, func(i, j int) bool {
		return files[i].path < files[j].path
	})

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("event log archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("event log archiver: rotated out %s (%d bytes)", f.path, f.size)
	}
}
