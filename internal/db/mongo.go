package db

import (
	"context"
	"fmt"
	"time"

	"news_bot/internal/config"
	"news_bot/internal/models"
	"news_bot/internal/urlutil"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB archives the headlines delivered to chats.
type MongoDB struct {
	client    *mongo.Client
	database  *mongo.Database
	headlines *mongo.Collection
	log       *logrus.Entry
}

func NewMongoDB(ctx context.Context, cfg config.DBConfig, log *logrus.Entry) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	d := &MongoDB{
		client:    client,
		database:  db,
		headlines: db.Collection(cfg.Collections.Headlines),
		log:       log,
	}

	d.createIndexes(ctx)

	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "normalized_url", Value: 1}, {Key: "delivered_at", Value: -1}}},
	}
	if _, err := d.headlines.Indexes().CreateMany(ctx, indexes); err != nil {
		d.log.Warnf("⚠️ ошибка при создании индексов: %v", err)
	}
}

// headlineID is stable per chat, source and headline so repeated
// deliveries update one document.
func headlineID(chatID int64, source string, h models.HeadlineCandidate) string {
	return urlutil.ComputeContentHash(fmt.Sprintf("%d|%s|%s|%s", chatID, urlutil.NormalizeURL(source), h.Text, h.URL))
}

// SaveHeadlines upserts a delivered batch. Position keeps the order the
// batch was shown in.
func (d *MongoDB) SaveHeadlines(ctx context.Context, chatID int64, source string, headlines []models.HeadlineCandidate) error {
	if len(headlines) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	normalized := urlutil.NormalizeURL(source)

	writes := make([]mongo.WriteModel, 0, len(headlines))
	for i, h := range headlines {
		filter := bson.M{"_id": headlineID(chatID, source, h)}
		update := bson.M{
			"$set": bson.M{
				"chat_id":        chatID,
				"source":         source,
				"normalized_url": normalized,
				"text":           h.Text,
				"url":            h.URL,
				"position":       i,
				"delivered_at":   now,
			},
			"$inc": bson.M{"delivery_count": 1},
		}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	_, err := d.headlines.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("save headlines: %w", err)
	}
	return nil
}

// RecentHeadlines returns what one chat was shown for a source, newest
// first and in display order within a batch.
func (d *MongoDB) RecentHeadlines(ctx context.Context, chatID int64, source string, limit int) ([]models.ArchivedHeadline, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"chat_id": chatID, "normalized_url": urlutil.NormalizeURL(source)}
	opts := options.Find().
		SetSort(bson.D{{Key: "delivered_at", Value: -1}, {Key: "position", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := d.headlines.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find headlines: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.ArchivedHeadline
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode headlines: %w", err)
	}
	return out, nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}
