package tasks

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/errors"
	"taskhub/identity"
	"taskhub/model"
	"taskhub/store"
)

// MutationKind identifies which mutation produced a result.
type MutationKind string

const (
	MutationCreated MutationKind = "created"
	MutationUpdated MutationKind = "updated"
	MutationDeleted MutationKind = "deleted"
)

// MutationResult is what a successful mutation hands to the
// dispatcher. It carries everything notification computation needs,
// including the assignee captured before a delete removed the record.
type MutationResult struct {
	Kind MutationKind

	// Task is the persisted record joined with user display fields.
	// Nil for deletes; the record no longer exists to join.
	Task *model.TaskView

	// TaskID is always set, also after a delete.
	TaskID string

	// Actor is the identity that performed the mutation.
	Actor model.UserRef

	// AssigneeID is the task's current assignee, or for deletes the
	// assignee captured before the record was removed.
	AssigneeID string

	// Reassigned marks an update that changed the assignee. The
	// dispatcher sends unassigned/assigned notifications instead of a
	// generic update notification.
	Reassigned bool

	// PrevAssigneeID is the assignee before a reassignment.
	PrevAssigneeID string
}

// Create validates, authorizes and persists a new task.
func (h *Handlers) Create(ctx context.Context, actor *identity.Identity, in CreateInput) (*MutationResult, error) {
	if err := in.validate(time.Now()); err != nil {
		return nil, err
	}

	assignedID, _ := primitive.ObjectIDFromHex(in.AssignedTo)

	assignee, err := h.users.FindByID(ctx, assignedID)
	if err == store.ErrNotFound {
		return nil, errors.InvalidReference("assigned user not found",
			errors.WithField("assignedTo"), errors.WithUserID(in.AssignedTo))
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving assigned user")
	}

	if !actor.IsAdmin() && assignedID != actor.ID {
		return nil, errors.Forbidden("you can only create tasks for yourself")
	}

	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	task := &model.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      model.StatusPending,
		Priority:    priority,
		AssignedTo:  assignedID,
		CreatedBy:   actor.ID,
		DueDate:     in.DueDate,
		Tags:        in.Tags,
	}

	persisted, err := h.tasks.Insert(ctx, task)
	if err != nil {
		return nil, errors.Wrap(err, "persisting task")
	}

	view := persisted.View(assignee, actorUser(actor))
	h.log.Info("task_created", map[string]interface{}{
		"task":     view.ID,
		"actor":    actor.ID.Hex(),
		"assignee": in.AssignedTo,
	})

	return &MutationResult{
		Kind:       MutationCreated,
		Task:       view,
		TaskID:     view.ID,
		Actor:      actor.Ref(),
		AssigneeID: in.AssignedTo,
	}, nil
}

// Update applies a partial field set under the role policy. The
// decision is atomic: one disallowed field rejects the whole request
// and leaves the record untouched.
func (h *Handlers) Update(ctx context.Context, actor *identity.Identity, taskID string, in *UpdateInput) (*MutationResult, error) {
	id, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, errors.Validation("invalid task id", errors.WithField("taskId"))
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	task, err := h.tasks.FindByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, errors.NotFound("task not found", errors.WithTaskID(taskID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading task")
	}

	role := roleFor(actor, task.CreatedBy.Hex(), task.AssignedTo.Hex())
	if role == roleNone {
		return nil, errors.Forbidden("you can only modify tasks you created or that are assigned to you",
			errors.WithTaskID(taskID))
	}

	if field, ok := allowed(role, in.Requested); !ok {
		return nil, errors.Forbidden(policyMessage(role),
			errors.WithField(field), errors.WithTaskID(taskID))
	}

	prevAssignee := task.AssignedTo

	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}

	reassigned := false
	if in.AssignedTo != nil {
		newAssignee, _ := primitive.ObjectIDFromHex(*in.AssignedTo)
		if newAssignee != prevAssignee {
			if _, err := h.users.FindByID(ctx, newAssignee); err == store.ErrNotFound {
				return nil, errors.InvalidReference("assigned user not found",
					errors.WithField("assignedTo"), errors.WithUserID(*in.AssignedTo))
			} else if err != nil {
				return nil, errors.Wrap(err, "resolving assigned user")
			}
			task.AssignedTo = newAssignee
			reassigned = true
		}
	}

	saved, err := h.tasks.Save(ctx, task)
	if err != nil {
		return nil, errors.Wrap(err, "persisting task update")
	}

	view, err := h.joinView(ctx, saved)
	if err != nil {
		return nil, err
	}

	h.log.Info("task_updated", map[string]interface{}{
		"task":       view.ID,
		"actor":      actor.ID.Hex(),
		"reassigned": reassigned,
	})

	result := &MutationResult{
		Kind:       MutationUpdated,
		Task:       view,
		TaskID:     view.ID,
		Actor:      actor.Ref(),
		AssigneeID: saved.AssignedTo.Hex(),
		Reassigned: reassigned,
	}
	if reassigned {
		result.PrevAssigneeID = prevAssignee.Hex()
	}
	return result, nil
}

// Delete hard-deletes a task. Admin or creator only. The assignee is
// captured before deletion so the dispatcher can still notify them.
func (h *Handlers) Delete(ctx context.Context, actor *identity.Identity, taskID string) (*MutationResult, error) {
	id, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, errors.Validation("invalid task id", errors.WithField("taskId"))
	}

	task, err := h.tasks.FindByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, errors.NotFound("task not found", errors.WithTaskID(taskID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading task")
	}

	if !actor.IsAdmin() && task.CreatedBy != actor.ID {
		return nil, errors.Forbidden("you do not have permission to delete this task",
			errors.WithTaskID(taskID))
	}

	assigneeID := task.AssignedTo.Hex()

	if err := h.tasks.DeleteByID(ctx, id); err != nil {
		return nil, errors.Wrap(err, "deleting task")
	}

	h.log.Info("task_deleted", map[string]interface{}{
		"task":  taskID,
		"actor": actor.ID.Hex(),
	})

	return &MutationResult{
		Kind:       MutationDeleted,
		TaskID:     taskID,
		Actor:      actor.Ref(),
		AssigneeID: assigneeID,
	}, nil
}

// actorUser adapts an identity to a stored-user shape for view joins,
// avoiding a redundant store read for the creator on create.
func actorUser(actor *identity.Identity) *model.User {
	return &model.User{
		ID:       actor.ID,
		Username: actor.Username,
		Email:    actor.Email,
		Role:     actor.Role,
	}
}
