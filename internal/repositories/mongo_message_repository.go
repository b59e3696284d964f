package repositories

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realtime-chat/internal/models"
)

const (
	MessageCollection = "messages"
	CounterCollection = "counters"
	messageCounterID  = "messages"
)

// MongoMessageRepo stores messages as documents. Read state changes go
// through FindOneAndUpdate with an $ne guard so concurrent readers never
// lose an update.
type MongoMessageRepo struct {
	messages *mongo.Collection
	counters *mongo.Collection
}

// NewMongoMessageRepo constructs MongoMessageRepo.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{
		messages: db.Collection(MessageCollection),
		counters: db.Collection(CounterCollection),
	}
}

func (r *MongoMessageRepo) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": messageCounterID}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&counter)
	return counter.Seq, err
}

// Append inserts a message with the next sequence number.
func (r *MongoMessageRepo) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return models.Message{}, err
	}
	msg = msg.Normalize()
	msg.Seq = seq
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MongoMessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return msg.Normalize(), nil
}

// RecentPublic returns the newest public messages in chronological order.
func (r *MongoMessageRepo) RecentPublic(ctx context.Context, limit int) ([]models.Message, error) {
	return r.newestFirst(ctx, bson.M{"is_private": false}, limit)
}

// RecentPrivate returns the newest messages between two users in
// chronological order.
func (r *MongoMessageRepo) RecentPrivate(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	filter := bson.M{
		"is_private": true,
		"$or": bson.A{
			bson.M{"sender_id": userA, "recipient_id": userB},
			bson.M{"sender_id": userB, "recipient_id": userA},
		},
	}
	return r.newestFirst(ctx, filter, limit)
}

func (r *MongoMessageRepo) newestFirst(ctx context.Context, filter bson.M, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	msgs, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *MongoMessageRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cursor, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i] = msgs[i].Normalize()
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func unreadFilter(readerID string) bson.M {
	return bson.M{
		"recipient_id": readerID,
		"is_private":   true,
		"read_by":      bson.M{"$ne": readerID},
	}
}

// UnreadFor returns the unread backlog of userID.
func (r *MongoMessageRepo) UnreadFor(ctx context.Context, userID string) ([]models.Message, error) {
	return r.find(ctx, unreadFilter(userID), options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
}

// UnreadCounts groups the unread backlog of userID by sender.
func (r *MongoMessageRepo) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: unreadFilter(userID)}},
		{{Key: "$group", Value: bson.M{"_id": "$sender_id", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []struct {
		SenderID string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		counts[g.SenderID] = g.Count
	}
	return counts, nil
}

// MarkRead adds readerID to read_by if it is not already there.
func (r *MongoMessageRepo) MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (models.Message, bool, error) {
	filter := bson.M{"_id": messageID, "read_by": bson.M{"$ne": readerID}}
	update := bson.M{
		"$addToSet": bson.M{"read_by": readerID},
		"$set":      bson.M{"read_at": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg models.Message
	err := r.messages.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, getErr := r.Get(ctx, messageID)
		return existing, false, getErr
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return msg.Normalize(), true, nil
}

// MarkAllReadFrom marks the unread messages from senderID one by one so each
// change stays atomic and is reported exactly once.
func (r *MongoMessageRepo) MarkAllReadFrom(ctx context.Context, readerID, senderID string, at time.Time) ([]models.Message, error) {
	filter := unreadFilter(readerID)
	filter["sender_id"] = senderID
	candidates, err := r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}

	changed := make([]models.Message, 0, len(candidates))
	for _, candidate := range candidates {
		msg, ok, err := r.MarkRead(ctx, candidate.ID, readerID, at)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, msg)
		}
	}
	return changed, nil
}
