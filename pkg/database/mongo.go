package database

import (
	"context"
	"fmt"
	"time"

	"github.com/myhuemungusD/skatehubba/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB MongoDB 클라이언트와 데이터베이스 핸들
type MongoDB struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectMongo MongoDB 연결
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoDB, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is empty")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri)
	opts.SetMinPoolSize(2)
	opts.SetMaxPoolSize(50)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("MongoDB connected successfully", "database", dbName)

	return &MongoDB{Client: client, DB: client.Database(dbName)}, nil
}

// Close 연결 종료
func (m *MongoDB) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
