// Package tasks implements the permission-gated task mutations as pure
// functions of (actor, input).
//
// Both entry points — the one-shot HTTP surface and the persistent
// connection — call the same handlers; only the error translation
// differs in the respective adapter. Handlers validate before touching
// the store, enforce the role policy atomically, and return a
// MutationResult the dispatcher turns into wire events.
package tasks

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/errors"
	"taskhub/identity"
	"taskhub/logging"
	"taskhub/model"
	"taskhub/store"
)

// Handlers holds the stores the mutations operate on.
type Handlers struct {
	tasks store.TaskStore
	users store.UserStore
	log   *logging.Logger
}

// NewHandlers creates the mutation handlers.
func NewHandlers(tasks store.TaskStore, users store.UserStore, log *logging.Logger) *Handlers {
	return &Handlers{
		tasks: tasks,
		users: users,
		log:   log.WithComponent("tasks"),
	}
}

// lookupUser resolves a user id, mapping a dangling reference to nil.
func (h *Handlers) lookupUser(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	u, err := h.users.FindByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving user reference")
	}
	return u, nil
}

// joinView joins a task with its referenced users' display fields.
// Dangling references resolve to the unknown-user placeholder.
func (h *Handlers) joinView(ctx context.Context, t *model.Task) (*model.TaskView, error) {
	assignee, err := h.lookupUser(ctx, t.AssignedTo)
	if err != nil {
		return nil, err
	}
	creator, err := h.lookupUser(ctx, t.CreatedBy)
	if err != nil {
		return nil, err
	}
	return t.View(assignee, creator), nil
}

// ListResult is the response of the list operation.
type ListResult struct {
	Tasks []*model.TaskView `json:"tasks"`
	// Users is the user directory, included for admin actors only.
	Users []model.UserRef `json:"users,omitempty"`
}

// List returns every task, newest update first, joined with user
// display fields. Admin actors also receive the user directory.
func (h *Handlers) List(ctx context.Context, actor *identity.Identity) (*ListResult, error) {
	records, err := h.tasks.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}

	// Resolve each referenced user once per call.
	cache := make(map[primitive.ObjectID]*model.User)
	resolve := func(id primitive.ObjectID) (*model.User, error) {
		if u, ok := cache[id]; ok {
			return u, nil
		}
		u, err := h.lookupUser(ctx, id)
		if err != nil {
			return nil, err
		}
		cache[id] = u
		return u, nil
	}

	views := make([]*model.TaskView, 0, len(records))
	for i := range records {
		t := &records[i]
		assignee, err := resolve(t.AssignedTo)
		if err != nil {
			return nil, err
		}
		creator, err := resolve(t.CreatedBy)
		if err != nil {
			return nil, err
		}
		views = append(views, t.View(assignee, creator))
	}

	result := &ListResult{Tasks: views}
	if actor.IsAdmin() {
		users, err := h.users.List(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing users")
		}
		refs := make([]model.UserRef, 0, len(users))
		for i := range users {
			refs = append(refs, model.Ref(&users[i], users[i].ID))
		}
		result.Users = refs
	}
	return result, nil
}

// Get returns a single task joined with user display fields.
func (h *Handlers) Get(ctx context.Context, actor *identity.Identity, taskID string) (*model.TaskView, error) {
	id, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, errors.Validation("invalid task id", errors.WithField("taskId"))
	}

	t, err := h.tasks.FindByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, errors.NotFound("task not found", errors.WithTaskID(taskID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading task")
	}
	return h.joinView(ctx, t)
}

// Stats summarizes the actor's created or assigned tasks by status.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// GetStats aggregates per-status counts for the actor.
func (h *Handlers) GetStats(ctx context.Context, actor *identity.Identity) (*Stats, error) {
	counts, err := h.tasks.CountByStatus(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating task stats")
	}

	stats := &Stats{
		Pending:    counts[model.StatusPending],
		InProgress: counts[model.StatusInProgress],
		Completed:  counts[model.StatusCompleted],
		Cancelled:  counts[model.StatusCancelled],
	}
	stats.Total = stats.Pending + stats.InProgress + stats.Completed + stats.Cancelled
	return stats, nil
}
