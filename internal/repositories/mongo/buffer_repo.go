package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/rehearse/internal/models"
)

// ChunkRepository stores incremental recording chunks. Documents expire
// through the TTL index on expires_at.
type ChunkRepository interface {
	// UpsertChunk is idempotent on (session_id, chunk_index) so a client
	// resending a chunk does not create duplicates.
	UpsertChunk(ctx context.Context, c *models.AudioChunk) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AudioChunk, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

type chunkRepo struct {
	col *mongo.Collection
}

func NewChunkRepo(db *mongo.Database) ChunkRepository {
	return &chunkRepo{col: db.Collection("audio_chunks")}
}

func (r *chunkRepo) UpsertChunk(ctx context.Context, c *models.AudioChunk) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": c.SessionID, "chunk_index": c.ChunkIndex},
		bson.M{"$set": bson.M{
			"user_id":      c.UserID,
			"audio_base64": c.AudioBase64,
			"mime_type":    c.MimeType,
			"size_bytes":   c.SizeBytes,
			"timestamp":    c.Timestamp,
			"expires_at":   c.ExpiresAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *chunkRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AudioChunk, error) {
	if limit <= 0 {
		limit = 500
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AudioChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
