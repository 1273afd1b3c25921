package classroom

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

// Repository caches courses and assignments per user so browsing and draft
// generation do not hit the remote API on every request. Entries are
// upserted by their remote Google id on each sync.
type Repository interface {
	UpsertCourse(ctx context.Context, c *Course) (*Course, error)
	GetCourse(ctx context.Context, id, ownerID string) (*Course, error)
	ListCourses(ctx context.Context, ownerID string) ([]*Course, error)

	UpsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error)
	GetAssignment(ctx context.Context, id, ownerID string) (*Assignment, error)
	ListAssignments(ctx context.Context, courseID, ownerID string) ([]*Assignment, error)
}

// MongoRepository implements Repository on two Mongo collections.
type MongoRepository struct {
	courses     *mongo.Collection
	assignments *mongo.Collection
}

func NewMongoRepository(courses, assignments *mongo.Collection) *MongoRepository {
	ctx := context.Background()
	courses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "googleId", Value: 1}, {Key: "ownerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	assignments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "googleId", Value: 1}, {Key: "ownerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &MongoRepository{courses: courses, assignments: assignments}
}

func (r *MongoRepository) UpsertCourse(ctx context.Context, c *Course) (*Course, error) {
	now := time.Now().UTC()
	filter := bson.M{"googleId": c.GoogleID, "ownerId": c.OwnerID}
	update := bson.M{
		"$set": bson.M{
			"name":        c.Name,
			"section":     c.Section,
			"description": c.Description,
			"room":        c.Room,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"id": uuid.NewString(), "googleId": c.GoogleID, "ownerId": c.OwnerID, "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out Course
	if err := r.courses.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) GetCourse(ctx context.Context, id, ownerID string) (*Course, error) {
	var c Course
	if err := r.courses.FindOne(ctx, bson.M{"id": id, "ownerId": ownerID}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoRepository) ListCourses(ctx context.Context, ownerID string) ([]*Course, error) {
	cur, err := r.courses.Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Course{}
	for cur.Next(ctx) {
		var c Course
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *MongoRepository) UpsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error) {
	now := time.Now().UTC()
	filter := bson.M{"googleId": a.GoogleID, "ownerId": a.OwnerID}
	set := bson.M{
		"courseId":  a.CourseID,
		"title":     a.Title,
		"updatedAt": now,
	}
	if a.Description != "" {
		set["description"] = a.Description
	}
	if len(a.Materials) > 0 {
		set["materials"] = a.Materials
	}
	if a.DueDate != nil {
		set["dueDate"] = a.DueDate
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"id": uuid.NewString(), "googleId": a.GoogleID, "ownerId": a.OwnerID, "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out Assignment
	if err := r.assignments.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) GetAssignment(ctx context.Context, id, ownerID string) (*Assignment, error) {
	var a Assignment
	if err := r.assignments.FindOne(ctx, bson.M{"id": id, "ownerId": ownerID}).Decode(&a); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *MongoRepository) ListAssignments(ctx context.Context, courseID, ownerID string) ([]*Assignment, error) {
	cur, err := r.assignments.Find(ctx, bson.M{"courseId": courseID, "ownerId": ownerID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Assignment{}
	for cur.Next(ctx) {
		var a Assignment
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

// MemoryRepository is the in-memory Repository used in tests and when Mongo
// is not configured.
type MemoryRepository struct {
	mu          sync.RWMutex
	courses     map[string]*Course
	assignments map[string]*Assignment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		courses:     map[string]*Course{},
		assignments: map[string]*Assignment{},
	}
}

func (r *MemoryRepository) UpsertCourse(ctx context.Context, c *Course) (*Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, ex := range r.courses {
		if ex.GoogleID == c.GoogleID && ex.OwnerID == c.OwnerID {
			ex.Name, ex.Section, ex.Description, ex.Room = c.Name, c.Section, c.Description, c.Room
			ex.UpdatedAt = now
			cp := *ex
			return &cp, nil
		}
	}
	cp := *c
	cp.ID = uuid.NewString()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.courses[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) GetCourse(ctx context.Context, id, ownerID string) (*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.courses[id]; ok && c.OwnerID == ownerID {
		cp := *c
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListCourses(ctx context.Context, ownerID string) ([]*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Course{}
	for _, c := range r.courses {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, ex := range r.assignments {
		if ex.GoogleID == a.GoogleID && ex.OwnerID == a.OwnerID {
			ex.CourseID, ex.Title = a.CourseID, a.Title
			if a.Description != "" {
				ex.Description = a.Description
			}
			if len(a.Materials) > 0 {
				ex.Materials = a.Materials
			}
			if a.DueDate != nil {
				ex.DueDate = a.DueDate
			}
			ex.UpdatedAt = now
			cp := *ex
			return &cp, nil
		}
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.assignments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) GetAssignment(ctx context.Context, id, ownerID string) (*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.assignments[id]; ok && a.OwnerID == ownerID {
		cp := *a
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListAssignments(ctx context.Context, courseID, ownerID string) ([]*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Assignment{}
	for _, a := range r.assignments {
		if a.CourseID == courseID && a.OwnerID == ownerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
