package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// Field length limits, matching the persisted schema.
const (
	TitleMinLen       = 1
	TitleMaxLen       = 200
	DescriptionMaxLen = 1000
	TagMaxLen         = 50
)

// Task is the persisted task record. assignedTo and createdBy hold
// raw user ids; reads join them into UserRefs via Task.View.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Status      Status             `bson:"status" json:"status"`
	Priority    Priority           `bson:"priority" json:"priority"`
	AssignedTo  primitive.ObjectID `bson:"assignedTo" json:"assignedTo"`
	CreatedBy   primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	DueDate     *time.Time         `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	Tags        []string           `bson:"tags" json:"tags"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := *t
	if t.DueDate != nil {
		due := *t.DueDate
		clone.DueDate = &due
	}
	clone.Tags = append([]string(nil), t.Tags...)
	return &clone
}

// TaskView is a task joined with the display fields of its referenced
// users. This is the shape every read path and wire event carries.
type TaskView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	AssignedTo  UserRef    `json:"assignedTo"`
	CreatedBy   UserRef    `json:"createdBy"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// View joins a task with its referenced users. Either user may be nil
// for a dangling reference.
func (t *Task) View(assignee, creator *User) *TaskView {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return &TaskView{
		ID:          t.ID.Hex(),
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		AssignedTo:  Ref(assignee, t.AssignedTo),
		CreatedBy:   Ref(creator, t.CreatedBy),
		DueDate:     t.DueDate,
		Tags:        tags,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
