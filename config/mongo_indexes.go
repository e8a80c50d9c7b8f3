package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoIndexes creates the indexes the session and audio-chunk
// repositories rely on. Safe to run repeatedly.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return errors.New("mongo database is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chunks := db.Collection("audio_chunks")
	_, err := chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// expires_at must be a Date for the TTL monitor
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_chunk").
				SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	sessions := db.Collection("sessions")
	_, err = sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_user_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "completed_at", Value: -1}},
			Options: options.Index().SetName("by_user_status_completed"),
		},
	})
	return err
}
