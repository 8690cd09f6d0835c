package tasks

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskhub/errors"
	"taskhub/model"
)

// CreateInput carries the fields of a create_task request. Both entry
// points decode into this shape.
type CreateInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AssignedTo  string         `json:"assignedTo"`
	Priority    model.Priority `json:"priority,omitempty"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// validate checks shape and ranges. Runs before any store access so a
// rejected create never touches persistence.
func (in *CreateInput) validate(now time.Time) error {
	// Limits count characters, not bytes: a multibyte title within the
	// character budget is valid.
	title := strings.TrimSpace(in.Title)
	if n := utf8.RuneCountInString(title); n < model.TitleMinLen || n > model.TitleMaxLen {
		return errors.Validation("title must be between 1 and 200 characters", errors.WithField("title"))
	}
	in.Title = title

	in.Description = strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(in.Description) > model.DescriptionMaxLen {
		return errors.Validation("description cannot exceed 1000 characters", errors.WithField("description"))
	}

	if in.Priority != "" && !in.Priority.Valid() {
		return errors.Validation("invalid priority", errors.WithField("priority"))
	}

	if in.DueDate != nil && !in.DueDate.After(now) {
		return errors.Validation("due date must be in the future", errors.WithField("dueDate"))
	}

	for i, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || utf8.RuneCountInString(tag) > model.TagMaxLen {
			return errors.Validation("each tag must be between 1 and 50 characters", errors.WithField("tags"))
		}
		in.Tags[i] = tag
	}

	if _, err := primitive.ObjectIDFromHex(in.AssignedTo); err != nil {
		return errors.Validation("invalid assigned user id", errors.WithField("assignedTo"))
	}

	return nil
}

// UpdateInput carries the partial field set of an update_task request.
// Requested lists every field name the client asked to change,
// including fields this core does not recognize; the allow-list check
// runs against the full requested set.
type UpdateInput struct {
	Status     *model.Status
	Priority   *model.Priority
	AssignedTo *string
	Requested  []string
}

// ParseUpdateInput decodes the raw partial-update payload. Unknown
// keys are kept in Requested so they fail the policy check instead of
// being silently dropped.
func ParseUpdateInput(raw []byte) (*UpdateInput, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, errors.Validation("invalid update payload")
	}

	var typed struct {
		Status     *model.Status   `json:"status"`
		Priority   *model.Priority `json:"priority"`
		AssignedTo *string         `json:"assignedTo"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, errors.Validation("invalid update payload")
	}

	in := &UpdateInput{
		Status:     typed.Status,
		Priority:   typed.Priority,
		AssignedTo: typed.AssignedTo,
	}
	for key := range keys {
		in.Requested = append(in.Requested, key)
	}
	return in, nil
}

// validate checks the typed fields' values. Field permissions are the
// policy table's concern, not this method's.
func (in *UpdateInput) validate() error {
	if in.Status != nil && !in.Status.Valid() {
		return errors.Validation("invalid status", errors.WithField("status"))
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return errors.Validation("invalid priority", errors.WithField("priority"))
	}
	if in.AssignedTo != nil {
		if _, err := primitive.ObjectIDFromHex(*in.AssignedTo); err != nil {
			return errors.Validation("invalid assigned user id", errors.WithField("assignedTo"))
		}
	}
	return nil
}
