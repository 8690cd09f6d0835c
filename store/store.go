// Package store persists users and tasks.
//
// The Mongo implementation backs production; the memory implementation
// backs tests and single-process development. Both return the same
// sentinel errors so handlers never branch on the backend.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/model"
)

// Common errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("record already exists")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// UserStore reads and writes accounts in the identity store.
type UserStore interface {
	// Insert adds a new user. Returns ErrDuplicate when the email or
	// username is already taken.
	Insert(ctx context.Context, u *model.User) (*model.User, error)

	// FindByID returns the user with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)

	// FindByEmail returns the user with the given email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername returns the user with the given username, or ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List returns all users sorted by username.
	List(ctx context.Context) ([]model.User, error)
}

// TaskStore reads and writes task records.
type TaskStore interface {
	// Insert persists a new task and returns it with its id set.
	Insert(ctx context.Context, t *model.Task) (*model.Task, error)

	// FindByID returns the task with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.Task, error)

	// Save replaces the stored record. Last write wins; the store's
	// per-document write ordering is the only serialization applied.
	Save(ctx context.Context, t *model.Task) (*model.Task, error)

	// DeleteByID removes the task. Hard delete, no tombstone.
	DeleteByID(ctx context.Context, id primitive.ObjectID) error

	// FindAll returns every task sorted by updatedAt descending.
	FindAll(ctx context.Context) ([]model.Task, error)

	// CountByStatus counts tasks created by or assigned to the user,
	// grouped by status.
	CountByStatus(ctx context.Context, userID primitive.ObjectID) (map[model.Status]int, error)
}
