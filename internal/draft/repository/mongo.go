package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
)

// MongoRepo implements Repository on a MongoDB collection. Status transitions
// use FindOneAndUpdate with the expected current status in the filter, which
// gives the compare-and-swap behavior the lifecycle relies on: when two
// submits race, the second one's filter no longer matches and it loses.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	// draft ids are unique; lookups and the CAS filters all start from "id"
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}
	col.Indexes().CreateOne(context.Background(), idxModel)
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, d *draft.Draft) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := m.col.InsertOne(ctx, d)
	return err
}

// classify distinguishes not-found from owner-mismatch from wrong-status after
// a conditioned update matched nothing.
func (m *MongoRepo) classify(ctx context.Context, id, ownerID string) error {
	var d draft.Draft
	if err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return draft.ErrNotFound
		}
		return err
	}
	if ownerID != "" && d.OwnerID != ownerID {
		return draft.ErrForbidden
	}
	return draft.ErrInvalidState
}

func (m *MongoRepo) Get(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	var d draft.Draft
	if err := m.col.FindOne(ctx, bson.M{"id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, draft.ErrNotFound
		}
		return nil, err
	}
	if ownerID != "" && d.OwnerID != ownerID {
		return nil, draft.ErrForbidden
	}
	return &d, nil
}

func (m *MongoRepo) ListByAssignment(ctx context.Context, assignmentID, ownerID string) ([]*draft.Draft, error) {
	cur, err := m.col.Find(ctx, bson.M{"assignmentId": assignmentID, "ownerId": ownerID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*draft.Draft{}
	for cur.Next(ctx) {
		var d draft.Draft
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// casUpdate runs a FindOneAndUpdate whose filter pins the expected state and
// returns the post-update document. A non-matching filter is classified into
// the error taxonomy.
func (m *MongoRepo) casUpdate(ctx context.Context, filter, update bson.M, id, ownerID string) (*draft.Draft, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d draft.Draft
	if err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classify(ctx, id, ownerID)
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, id, ownerID, content, feedback string) (*draft.Draft, error) {
	// mirrors draft.Editable: content is frozen once a submit claim is taken
	filter := bson.M{"id": id, "ownerId": ownerID, "status": bson.M{"$in": []draft.Status{draft.StatusDraft, draft.StatusFailed}}}
	update := bson.M{"$set": bson.M{"content": content, "feedback": feedback, "updatedAt": time.Now().UTC()}}
	return m.casUpdate(ctx, filter, update, id, ownerID)
}

func (m *MongoRepo) CompleteGeneration(ctx context.Context, id, content string) (*draft.Draft, error) {
	filter := bson.M{"id": id, "status": draft.StatusGenerating}
	update := bson.M{"$set": bson.M{
		"status":    draft.StatusDraft,
		"content":   content,
		"updatedAt": time.Now().UTC(),
	}, "$unset": bson.M{"failureReason": ""}}
	return m.casUpdate(ctx, filter, update, id, "")
}

func (m *MongoRepo) FailGeneration(ctx context.Context, id, reason string) error {
	filter := bson.M{"id": id, "status": draft.StatusGenerating}
	update := bson.M{"$set": bson.M{
		"status":        draft.StatusFailed,
		"failureReason": reason,
		"updatedAt":     time.Now().UTC(),
	}}
	_, err := m.casUpdate(ctx, filter, update, id, "")
	return err
}

func (m *MongoRepo) ResetForRetry(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	filter := bson.M{"id": id, "ownerId": ownerID, "status": draft.StatusFailed}
	update := bson.M{"$set": bson.M{"status": draft.StatusGenerating, "updatedAt": time.Now().UTC()},
		"$unset": bson.M{"failureReason": ""}}
	return m.casUpdate(ctx, filter, update, id, ownerID)
}

func (m *MongoRepo) ClaimSubmit(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	filter := bson.M{"id": id, "ownerId": ownerID, "status": draft.StatusDraft}
	update := bson.M{"$set": bson.M{"status": draft.StatusSubmitting, "updatedAt": time.Now().UTC()}}
	return m.casUpdate(ctx, filter, update, id, ownerID)
}

func (m *MongoRepo) AbortSubmit(ctx context.Context, id, ownerID string) error {
	filter := bson.M{"id": id, "ownerId": ownerID, "status": draft.StatusSubmitting}
	update := bson.M{"$set": bson.M{"status": draft.StatusDraft, "updatedAt": time.Now().UTC()}}
	_, err := m.casUpdate(ctx, filter, update, id, ownerID)
	return err
}

func (m *MongoRepo) MarkSubmitted(ctx context.Context, id, ownerID string, at time.Time) (*draft.Draft, error) {
	filter := bson.M{"id": id, "ownerId": ownerID, "status": draft.StatusSubmitting}
	update := bson.M{"$set": bson.M{
		"status":         draft.StatusSubmitted,
		"submissionDate": at,
		"updatedAt":      at,
	}}
	return m.casUpdate(ctx, filter, update, id, ownerID)
}

func (m *MongoRepo) FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	filter := bson.M{"status": draft.StatusGenerating, "updatedAt": bson.M{"$lt": cutoff}}
	update := bson.M{"$set": bson.M{
		"status":        draft.StatusFailed,
		"failureReason": reason,
		"updatedAt":     time.Now().UTC(),
	}}
	res, err := m.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
