package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
	"github.com/relaymesh/whatsapp-inbox/pkg/metrics"
)

const messagesCollection = "processed_messages"

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logger.Logger
}

// NewMongo connects to MongoDB, verifies the connection, and ensures the
// unique messageId index. The returned handle owns the client; callers
// release it with Close.
func NewMongo(ctx context.Context, uri, dbName string, log *logger.Logger) (*Mongo, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Mongo{
		client: client,
		db:     client.Database(dbName),
		logger: log,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

func (s *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := s.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "messageId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *Mongo) collection() *mongo.Collection {
	return s.db.Collection(messagesCollection)
}

// messageSet returns the full $set document for a message upsert. The
// numeric statusRank mirrors model.Status.Rank so status updates can
// guard against lifecycle regressions inside the update filter.
func messageSet(msg *model.Message) bson.M {
	return bson.M{
		"messageId":          msg.MessageID,
		"conversationId":     msg.ConversationID,
		"body":               msg.Body,
		"from":               msg.From,
		"to":                 msg.To,
		"timestamp":          msg.Timestamp,
		"status":             msg.Status,
		"statusRank":         msg.Status.Rank(),
		"type":               msg.Type,
		"contactName":        msg.ContactName,
		"phoneNumberId":      msg.PhoneNumberID,
		"displayPhoneNumber": msg.DisplayPhoneNumber,
		"appId":              msg.AppID,
		"lastUpdated":        msg.LastUpdated,
	}
}

// UpsertMessage inserts or fully replaces the message keyed on MessageID.
func (s *Mongo) UpsertMessage(ctx context.Context, msg *model.Message) error {
	return s.upsertMessage(ctx, s.collection(), msg)
}

func (s *Mongo) upsertMessage(ctx context.Context, coll *mongo.Collection, msg *model.Message) error {
	_, err := coll.UpdateOne(ctx,
		bson.M{"messageId": msg.MessageID},
		bson.M{"$set": messageSet(msg)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", msg.MessageID, err)
	}
	return nil
}

// UpdateStatus sets status and lastUpdated on an existing message. No
// upsert: a status for an unknown messageId must not create a document.
func (s *Mongo) UpdateStatus(ctx context.Context, upd model.StatusUpdate) error {
	return s.updateStatus(ctx, s.collection(), upd)
}

func (s *Mongo) updateStatus(ctx context.Context, coll *mongo.Collection, upd model.StatusUpdate) error {
	rank := upd.Status.Rank()
	res, err := coll.UpdateOne(ctx,
		bson.M{
			"messageId": upd.MessageID,
			"$or": bson.A{
				bson.M{"statusRank": bson.M{"$exists": false}},
				bson.M{"statusRank": bson.M{"$lte": rank}},
			},
		},
		bson.M{"$set": bson.M{
			"status":      upd.Status,
			"statusRank":  rank,
			"lastUpdated": upd.LastUpdated,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update status for %s: %w", upd.MessageID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"messageId": upd.MessageID})
	if err != nil {
		return fmt.Errorf("failed to check message %s: %w", upd.MessageID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}

// ApplyBatch applies the batch inside one session transaction so a payload
// cannot be left half-applied. Standalone deployments without transaction
// support fall back to sequential per-document applies.
func (s *Mongo) ApplyBatch(ctx context.Context, batch Batch) (BatchResult, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return s.applySequential(ctx, batch)
	}
	defer sess.EndSession(ctx)

	var res BatchResult
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		r, err := s.apply(sc, batch)
		res = r
		return nil, err
	})
	if err != nil {
		if transactionsUnsupported(err) {
			s.logger.Warn("transactions unsupported by deployment, applying batch sequentially")
			return s.applySequential(ctx, batch)
		}
		return res, err
	}
	return res, nil
}

func (s *Mongo) apply(ctx context.Context, batch Batch) (BatchResult, error) {
	var res BatchResult
	coll := s.collection()
	for i := range batch.Messages {
		if err := s.upsertMessage(ctx, coll, &batch.Messages[i]); err != nil {
			return res, err
		}
		res.Upserted++
	}
	for _, upd := range batch.Statuses {
		switch err := s.updateStatus(ctx, coll, upd); {
		case err == nil:
			res.Applied = append(res.Applied, upd)
		case errors.Is(err, ErrNotFound):
			res.Missing = append(res.Missing, upd)
		case errors.Is(err, ErrStaleStatus):
			res.Stale++
		default:
			return res, err
		}
	}
	return res, nil
}

func (s *Mongo) applySequential(ctx context.Context, batch Batch) (BatchResult, error) {
	return s.apply(ctx, batch)
}

// transactionsUnsupported reports whether err means the deployment (a
// standalone mongod) cannot run multi-document transactions.
func transactionsUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 20 = IllegalOperation, raised for transaction numbers on
		// non-replset deployments.
		return cmdErr.Code == 20
	}
	return false
}

// groupStages is the shared aggregation core: chronological sort, one
// group per conversationId with pushed messages and distinct participants,
// then a projection that strips participants without a phone.
func groupStages() mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversationId"},
			{Key: "messages", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "id", Value: "$messageId"},
				{Key: "body", Value: "$body"},
				{Key: "from", Value: "$from"},
				{Key: "to", Value: "$to"},
				{Key: "timestamp", Value: "$timestamp"},
				{Key: "status", Value: "$status"},
				{Key: "type", Value: "$type"},
			}}}},
			{Key: "participants", Value: bson.D{{Key: "$addToSet", Value: bson.D{
				{Key: "phone", Value: "$from"},
				{Key: "name", Value: "$contactName"},
			}}}},
			{Key: "lastUpdated", Value: bson.D{{Key: "$max", Value: "$lastUpdated"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "id", Value: "$_id"},
			{Key: "messages", Value: 1},
			{Key: "lastUpdated", Value: 1},
			{Key: "participants", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$participants"},
				{Key: "as", Value: "participant"},
				{Key: "cond", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$ne", Value: bson.A{"$$participant.phone", nil}}},
					bson.D{{Key: "$ne", Value: bson.A{"$$participant.phone", ""}}},
				}}}},
			}}}},
		}}},
	}
}

// ListConversations groups all messages into conversations ordered by
// recency.
func (s *Mongo) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	}()

	pipeline := append(groupStages(),
		bson.D{{Key: "$sort", Value: bson.D{{Key: "lastUpdated", Value: -1}}}},
	)

	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := []model.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}

// GetConversation aggregates the single conversation with the given ID.
func (s *Mongo) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	pipeline := append(mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "conversationId", Value: id}}}},
	}, groupStages()...)

	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversation %s: %w", id, err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
		}
		return nil, ErrNotFound
	}

	var conv model.Conversation
	if err := cursor.Decode(&conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

// Ping verifies the MongoDB connection is alive.
func (s *Mongo) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Mongo) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

var _ Store = (*Mongo)(nil)
var _ Store = (*Memory)(nil)
