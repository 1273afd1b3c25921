package classroom

import "time"

// Course is the locally cached copy of a Classroom course, scoped per user.
type Course struct {
	ID          string    `json:"id" bson:"id"`
	GoogleID    string    `json:"googleId" bson:"googleId"`
	OwnerID     string    `json:"ownerId" bson:"ownerId"`
	Name        string    `json:"name" bson:"name"`
	Section     string    `json:"section,omitempty" bson:"section,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Room        string    `json:"room,omitempty" bson:"room,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Assignment is the locally cached copy of a Classroom coursework entry.
type Assignment struct {
	ID          string     `json:"id" bson:"id"`
	GoogleID    string     `json:"googleId" bson:"googleId"`
	CourseID    string     `json:"courseId" bson:"courseId"`
	OwnerID     string     `json:"ownerId" bson:"ownerId"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Materials   []string   `json:"materials,omitempty" bson:"materials,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// AssignmentContext is what the draft lifecycle needs to prompt the
// generation provider and to label exported documents.
type AssignmentContext struct {
	GoogleCourseID     string
	GoogleAssignmentID string
	CourseName         string
	Title              string
	Description        string
	Materials          []string
}

// Submission is the provider's receipt for a turned-in coursework submission.
type Submission struct {
	ID          string
	DriveFileID string
	State       string
}
