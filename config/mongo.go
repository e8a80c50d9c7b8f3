package config

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewMongo connects to MongoDB and verifies the connection with a ping.
func NewMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(20).
		SetMinPoolSize(1)

	// Atlas clusters reject some Go 1.24 TLS defaults; pin TLS 1.2 when asked.
	if os.Getenv("MONGO_FORCE_TLS_CONFIG") == "true" {
		clientOpts = clientOpts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: os.Getenv("MONGO_INSECURE_TLS") == "true",
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}
