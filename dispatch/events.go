package dispatch

import (
	"encoding/json"
	"time"

	"taskhub/model"
)

// Outbound event names. These are the compatibility surface the
// connected clients bind handlers to.
const (
	EventTaskCreated      = "task_created"
	EventNewTask          = "new_task"
	EventTaskUpdated      = "task_updated"
	EventTaskDeleted      = "task_deleted"
	EventTaskError        = "task_error"
	EventTaskNotification = "task_notification"
	EventNotification     = "notification"
)

// Inbound mutation events accepted on an active connection.
const (
	EventCreateTask = "create_task"
	EventUpdateTask = "update_task"
	EventDeleteTask = "delete_task"
)

// Targeted notification types carried inside task_notification events.
const (
	NotifyTaskCreated    = "task_created"
	NotifyTaskUpdated    = "task_updated"
	NotifyTaskAssigned   = "task_assigned"
	NotifyTaskUnassigned = "task_unassigned"
	NotifyTaskDeleted    = "task_deleted"
)

// Envelope frames every event on the wire in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Encode marshals an envelope with the given payload, stamping the
// send time.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// TaskPayload carries a full task record on list-sync events. Exactly
// one of CreatedBy/UpdatedBy is set, matching the event kind.
type TaskPayload struct {
	Task      *model.TaskView `json:"task"`
	CreatedBy *model.UserRef  `json:"createdBy,omitempty"`
	UpdatedBy *model.UserRef  `json:"updatedBy,omitempty"`
}

// DeletePayload carries a deletion on list-sync events: the id only,
// the record is already gone.
type DeletePayload struct {
	TaskID    string        `json:"taskId"`
	DeletedBy model.UserRef `json:"deletedBy"`
}

// NotificationPayload is the targeted toast notification. Task is set
// for create/update kinds, TaskID for delete kinds.
type NotificationPayload struct {
	Type      string          `json:"type"`
	Task      *model.TaskView `json:"task,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	CreatedBy *model.UserRef  `json:"createdBy,omitempty"`
	UpdatedBy *model.UserRef  `json:"updatedBy,omitempty"`
	DeletedBy *model.UserRef  `json:"deletedBy,omitempty"`
}

// ErrorPayload is the connection-path failure report. A message only:
// the structured code stays on the request path.
type ErrorPayload struct {
	Message string `json:"message"`
}

// GenericPayload is a free-form notification to a single user.
type GenericPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
