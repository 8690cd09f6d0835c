// Package dispatch turns mutation results into wire events.
//
// Every mutation produces two independent message classes: a list-sync
// fan-out to all active connections so every client's task collection
// stays current, and targeted toast notifications to the connections
// of the specifically affected users. Delivery is fire-and-forget: a
// user without an active session, or one whose send buffer is full,
// silently misses the event and recovers by re-fetching.
package dispatch

import (
	"taskhub/logging"
	"taskhub/session"
	"taskhub/tasks"
)

// Dispatcher computes and delivers the event set for mutation results.
type Dispatcher struct {
	sessions *session.Registry
	log      *logging.Logger
}

// New creates a Dispatcher on the session registry.
func New(sessions *session.Registry, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		log:      log.WithComponent("dispatch"),
	}
}

// Dispatch emits the full event set for a mutation result.
func (d *Dispatcher) Dispatch(result *tasks.MutationResult) {
	d.DispatchFrom(result, "")
}

// DispatchFrom emits the event set for a mutation that originated on a
// specific connection. That connection already received a direct ack
// under the same event name for updates and deletes, so it is excluded
// from those fan-outs; the actor's other connections still receive
// them. Creates keep the full fan-out: the ack (task_created) and the
// fan-out (new_task) are distinct events.
func (d *Dispatcher) DispatchFrom(result *tasks.MutationResult, originConnID string) {
	switch result.Kind {
	case tasks.MutationCreated:
		d.dispatchCreated(result)
	case tasks.MutationUpdated:
		d.dispatchUpdated(result, originConnID)
	case tasks.MutationDeleted:
		d.dispatchDeleted(result, originConnID)
	}
}

func (d *Dispatcher) dispatchCreated(result *tasks.MutationResult) {
	actor := result.Actor

	targets := d.broadcast(EventNewTask, &TaskPayload{Task: result.Task, CreatedBy: &actor})
	d.log.Dispatched(EventNewTask, result.TaskID, targets)

	notification := &NotificationPayload{
		Type:      NotifyTaskCreated,
		Task:      result.Task,
		CreatedBy: &actor,
	}
	d.sendToUser(result.AssigneeID, EventTaskNotification, notification)
	d.echoToActor(result, EventTaskNotification, notification)
}

func (d *Dispatcher) dispatchUpdated(result *tasks.MutationResult, originConnID string) {
	actor := result.Actor

	targets := d.broadcastExcept(EventTaskUpdated, &TaskPayload{Task: result.Task, UpdatedBy: &actor}, originConnID)
	d.log.Dispatched(EventTaskUpdated, result.TaskID, targets)

	if result.Reassigned {
		// A reassignment notifies both sides specifically; the generic
		// update notification is never sent for it.
		d.sendToUser(result.PrevAssigneeID, EventTaskNotification, &NotificationPayload{
			Type:      NotifyTaskUnassigned,
			Task:      result.Task,
			UpdatedBy: &actor,
		})
		d.sendToUser(result.AssigneeID, EventTaskNotification, &NotificationPayload{
			Type:      NotifyTaskAssigned,
			Task:      result.Task,
			UpdatedBy: &actor,
		})
	} else {
		d.sendToUser(result.AssigneeID, EventTaskNotification, &NotificationPayload{
			Type:      NotifyTaskUpdated,
			Task:      result.Task,
			UpdatedBy: &actor,
		})
	}

	d.echoToActor(result, EventTaskNotification, &NotificationPayload{
		Type:      NotifyTaskUpdated,
		Task:      result.Task,
		UpdatedBy: &actor,
	})
}

func (d *Dispatcher) dispatchDeleted(result *tasks.MutationResult, originConnID string) {
	actor := result.Actor

	targets := d.broadcastExcept(EventTaskDeleted, &DeletePayload{TaskID: result.TaskID, DeletedBy: actor}, originConnID)
	d.log.Dispatched(EventTaskDeleted, result.TaskID, targets)

	notification := &NotificationPayload{
		Type:      NotifyTaskDeleted,
		TaskID:    result.TaskID,
		DeletedBy: &actor,
	}
	d.sendToUser(result.AssigneeID, EventTaskNotification, notification)
	d.echoToActor(result, EventTaskNotification, notification)
}

// echoToActor sends the actor their own notification for immediate
// feedback. An actor who is also the affected assignee receives both
// this echo and the targeted notification; deduplication by actor id
// is the consumer's policy, not the dispatcher's.
func (d *Dispatcher) echoToActor(result *tasks.MutationResult, event string, payload interface{}) {
	d.sendToUser(result.Actor.ID, event, payload)
}

// Broadcast fan-outs an event to every active connection.
func (d *Dispatcher) Broadcast(event string, payload interface{}) {
	d.broadcast(event, payload)
}

// NotifyUser sends a generic notification to one user's connections.
func (d *Dispatcher) NotifyUser(userID, message, notificationType string) {
	d.sendToUser(userID, EventNotification, &GenericPayload{
		Message: message,
		Type:    notificationType,
	})
}

func (d *Dispatcher) broadcast(event string, payload interface{}) int {
	return d.broadcastExcept(event, payload, "")
}

// broadcastExcept fans an event out to every active connection but the
// named one. Returns the number of connections addressed.
func (d *Dispatcher) broadcastExcept(event string, payload interface{}, exceptConnID string) int {
	data, err := Encode(event, payload)
	if err != nil {
		d.log.Error("encode_failed", map[string]interface{}{"event": event, "error": err.Error()})
		return 0
	}

	targets := 0
	for _, entry := range d.sessions.All() {
		if exceptConnID != "" && entry.Conn.ID() == exceptConnID {
			continue
		}
		entry.Conn.Send(data)
		targets++
	}
	return targets
}

func (d *Dispatcher) sendToUser(userID, event string, payload interface{}) {
	if userID == "" {
		return
	}

	conns := d.sessions.Lookup(userID)
	if len(conns) == 0 {
		// No active session: dropped, recoverable only by re-fetch.
		return
	}

	data, err := Encode(event, payload)
	if err != nil {
		d.log.Error("encode_failed", map[string]interface{}{"event": event, "error": err.Error()})
		return
	}

	for _, conn := range conns {
		conn.Send(data)
	}
	d.log.Debug("targeted", map[string]interface{}{
		"event":   event,
		"user":    userID,
		"targets": len(conns),
	})
}
