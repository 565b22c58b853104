package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongogo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type historyDoc struct {
	ID           string    `bson:"_id"`
	FolderName   string    `bson:"folder_name"`
	AnalysisName string    `bson:"analysis_name"`
	CreatedAt    time.Time `bson:"created_at"`
	Points       int       `bson:"points"`
}

func (d historyDoc) record() entity.HistoryRecord {
	return entity.HistoryRecord{
		FolderName:   d.ID,
		AnalysisName: d.AnalysisName,
		CreatedAt:    d.CreatedAt.UTC().Truncate(time.Second),
		Points:       d.Points,
	}
}

// Store is the document backend: run records in a collection keyed by run ID
// and artifacts in a GridFS bucket named "<runId>/<file name>". Re-uploading a
// name adds a revision; reads always resolve the newest one.
type Store struct {
	coll   *mongogo.Collection
	bucket *mongogo.GridFSBucket
}

func NewStore(client *mongogo.Client, database, collection, bucket string) *Store {
	db := client.Database(database)
	return &Store{
		coll:   db.Collection(collection),
		bucket: db.GridFSBucket(options.GridFSBucket().SetName(bucket)),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongogo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	return nil
}

func fileName(runID string, slot entity.ArtifactSlot) string {
	return path.Join(runID, slot.FileName())
}

func (s *Store) PutArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, _ int64, contentType string) error {
	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "run_id", Value: runID},
		{Key: "slot", Value: string(slot)},
		{Key: "content_type", Value: contentType},
	})
	if _, err := s.bucket.UploadFromStream(ctx, fileName(runID, slot), body, opts); err != nil {
		return fmt.Errorf("upload %s: %w", slot, err)
	}
	return nil
}

// GetArtifactRef materializes the artifact; GridFS has no presigned URLs.
func (s *Store) GetArtifactRef(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStreamByName(ctx, fileName(runID, slot), &buf); err != nil {
		if errors.Is(err, mongogo.ErrFileNotFound) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("download %s: %w", slot, err)
	}

	contentType := entity.VideoContentType
	if slot == entity.SlotPlot {
		contentType = entity.PlotContentType
	}
	return entity.BytesRef(slot, contentType, buf.Bytes()), nil
}

// StatArtifact looks the file up in the bucket's files collection without
// opening a download stream.
func (s *Store) StatArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	cur, err := s.bucket.Find(ctx, bson.D{{Key: "filename", Value: fileName(runID, slot)}},
		options.GridFSFind().SetLimit(1))
	if err != nil {
		return fmt.Errorf("find %s: %w", slot, err)
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		return nil
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("find %s: %w", slot, err)
	}
	return entity.ErrNotFound
}

// DeleteArtifact drops every revision stored under the slot's name.
func (s *Store) DeleteArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	cur, err := s.bucket.Find(ctx, bson.D{{Key: "filename", Value: fileName(runID, slot)}})
	if err != nil {
		return fmt.Errorf("find %s: %w", slot, err)
	}
	var files []struct {
		ID any `bson:"_id"`
	}
	if err := cur.All(ctx, &files); err != nil {
		return fmt.Errorf("decode %s revisions: %w", slot, err)
	}
	for _, f := range files {
		if err := s.bucket.Delete(ctx, f.ID); err != nil && !errors.Is(err, mongogo.ErrFileNotFound) {
			return fmt.Errorf("delete %s: %w", slot, err)
		}
	}
	return nil
}

func (s *Store) PutRecord(ctx context.Context, rec entity.HistoryRecord) error {
	doc := historyDoc{
		ID:           rec.FolderName,
		FolderName:   rec.FolderName,
		AnalysisName: rec.AnalysisName,
		CreatedAt:    rec.CreatedAt.UTC(),
		Points:       rec.Points,
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.FolderName}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, runID string) (*entity.HistoryRecord, error) {
	var doc historyDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc)
	if errors.Is(err, mongogo.ErrNoDocuments) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find history by folder: %w", err)
	}
	rec := doc.record()
	return &rec, nil
}

func (s *Store) ListRecords(ctx context.Context, limit int) ([]entity.HistoryRecord, error) {
	filter := bson.M{"analysis_name": bson.M{"$regex": `\S`}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	records := make([]entity.HistoryRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}
