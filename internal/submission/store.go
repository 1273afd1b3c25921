package submission

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Receipt is the Mongo record kept for each confirmed classroom submission,
// linking the draft to the provider's submission id and the archived PDF.
type Receipt struct {
	DraftID        string    `bson:"draftId" json:"draftId"`
	OwnerID        string    `bson:"ownerId" json:"ownerId"`
	AssignmentID   string    `bson:"assignmentId" json:"assignmentId"`
	SubmissionID   string    `bson:"submissionId" json:"submissionId"`
	DriveFileID    string    `bson:"driveFileId,omitempty" json:"driveFileId,omitempty"`
	ArchiveKey     string    `bson:"archiveKey,omitempty" json:"archiveKey,omitempty"`
	SubmittedAt    time.Time `bson:"submittedAt" json:"submittedAt"`
}

// Store persists submission receipts. A nil *Store is a no-op, so the
// lifecycle can run without Mongo configured.
type Store struct {
	col *mongo.Collection
}

func NewStore(col *mongo.Collection) *Store {
	return &Store{col: col}
}

// Save upserts the receipt keyed by draft id (at most one successful
// submission per draft).
func (s *Store) Save(ctx context.Context, r *Receipt) error {
	if s == nil || s.col == nil {
		return nil
	}
	filter := bson.M{"draftId": r.DraftID}
	opts := options.Update().SetUpsert(true)
	if _, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": r}, opts); err != nil {
		return fmt.Errorf("save submission receipt: %w", err)
	}
	return nil
}

// Load fetches the receipt for a draft. Returns nil when none exists.
func (s *Store) Load(ctx context.Context, draftID string) (*Receipt, error) {
	if s == nil || s.col == nil {
		return nil, nil
	}
	var r Receipt
	if err := s.col.FindOne(ctx, bson.M{"draftId": draftID}).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
