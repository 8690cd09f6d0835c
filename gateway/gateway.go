// Package gateway accepts websocket connections, gates them on a
// verified identity, and routes inbound mutation events to handlers.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskhub/dispatch"
	"taskhub/errors"
	"taskhub/identity"
	"taskhub/logging"
	"taskhub/session"
	"taskhub/tasks"
)

var (
	errConnClosed     = errors.Internal("connection closed")
	errSendBufferFull = errors.Internal("send buffer full")
)

// Gateway upgrades authenticated HTTP requests to websocket sessions.
type Gateway struct {
	verifier   *identity.Verifier
	handlers   *tasks.Handlers
	sessions   *session.Registry
	dispatcher *dispatch.Dispatcher
	upgrader   *websocket.Upgrader
	config     Config
	log        *logging.Logger
}

// New constructs a gateway over the given collaborators.
func New(verifier *identity.Verifier, handlers *tasks.Handlers, sessions *session.Registry, dispatcher *dispatch.Dispatcher, cfg Config, log *logging.Logger) *Gateway {
	return &Gateway{
		verifier:   verifier,
		handlers:   handlers,
		sessions:   sessions,
		dispatcher: dispatcher,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		config: cfg,
		log:    log.WithComponent("gateway"),
	}
}

// ServeHTTP handles the websocket handshake. Verification happens
// before the upgrade so an unauthenticated client gets a plain HTTP
// rejection it can read.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident, err := g.verifier.Verify(r.Context(), credentialFrom(r))
	if err != nil {
		g.log.HandshakeRejected(errors.ClientMessage(err))
		rejectHandshake(w, err)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own response on failure.
		g.log.HandshakeRejected(err.Error())
		return
	}

	userID := ident.ID.Hex()
	c := newConn(uuid.NewString(), ident, ws, g.config)
	if err := g.sessions.Register(userID, c); err != nil {
		c.close()
		return
	}
	g.log.ConnectionOpened(c.id, userID)

	go c.writeLoop()
	g.readLoop(c)

	g.sessions.Unregister(userID, c)
	c.close()
	g.log.ConnectionClosed(c.id, userID)
}

// credentialFrom pulls the bearer token from the Authorization header
// or, failing that, the token query parameter.
func credentialFrom(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func rejectHandshake(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": errors.ClientMessage(err),
	})
}

// readLoop consumes inbound frames until the client goes away. Any
// read error means disconnect; cleanup happens in the caller.
func (g *Gateway) readLoop(c *conn) {
	if g.config.PongTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var env dispatch.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(c, errors.Validation("malformed event"))
			continue
		}
		g.route(c, &env)
	}
}

type taskRef struct {
	TaskID string `json:"taskId"`
}

func (g *Gateway) route(c *conn, env *dispatch.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case dispatch.EventCreateTask:
		var in tasks.CreateInput
		if err := json.Unmarshal(env.Data, &in); err != nil {
			g.sendError(c, errors.Validation("malformed event"))
			return
		}
		result, err := g.handlers.Create(ctx, c.identity, in)
		if err != nil {
			g.handlerError(c, "create_task", err)
			return
		}
		actor := result.Actor
		g.ack(c, dispatch.EventTaskCreated, &dispatch.TaskPayload{Task: result.Task, CreatedBy: &actor})
		g.dispatcher.Dispatch(result)

	case dispatch.EventUpdateTask:
		taskID, updates, err := splitUpdate(env.Data)
		if err != nil {
			g.sendError(c, err)
			return
		}
		in, err := tasks.ParseUpdateInput(updates)
		if err != nil {
			g.sendError(c, err)
			return
		}
		result, err := g.handlers.Update(ctx, c.identity, taskID, in)
		if err != nil {
			g.handlerError(c, "update_task", err)
			return
		}
		actor := result.Actor
		g.ack(c, dispatch.EventTaskUpdated, &dispatch.TaskPayload{Task: result.Task, UpdatedBy: &actor})
		g.dispatcher.DispatchFrom(result, c.id)

	case dispatch.EventDeleteTask:
		var ref taskRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			g.sendError(c, errors.Validation("malformed event"))
			return
		}
		result, err := g.handlers.Delete(ctx, c.identity, ref.TaskID)
		if err != nil {
			g.handlerError(c, "delete_task", err)
			return
		}
		g.ack(c, dispatch.EventTaskDeleted, &dispatch.DeletePayload{TaskID: result.TaskID, DeletedBy: result.Actor})
		g.dispatcher.DispatchFrom(result, c.id)

	case dispatch.EventTaskUpdated:
		// Legacy echo path: relay the payload untouched to every
		// other connection.
		g.rebroadcast(c, env)

	default:
		g.sendError(c, errors.Newf(errors.CodeValidation, "unknown event %q", env.Event))
	}
}

// splitUpdate separates the task reference from the field changes so
// the taskId key never reads as a requested field.
func splitUpdate(data []byte) (string, []byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, errors.Validation("malformed event")
	}

	idRaw, ok := fields["taskId"]
	if !ok {
		return "", nil, errors.Validation("taskId is required")
	}
	var taskID string
	if err := json.Unmarshal(idRaw, &taskID); err != nil {
		return "", nil, errors.Validation("taskId is required")
	}
	delete(fields, "taskId")

	updates, err := json.Marshal(fields)
	if err != nil {
		return "", nil, errors.Internal("encode failed", errors.WithCause(err))
	}
	return taskID, updates, nil
}

func (g *Gateway) rebroadcast(origin *conn, env *dispatch.Envelope) {
	data, err := dispatch.Encode(env.Event, env.Data)
	if err != nil {
		return
	}
	for _, entry := range g.sessions.All() {
		if entry.Conn.ID() == origin.id {
			continue
		}
		entry.Conn.Send(data)
	}
}

func (g *Gateway) ack(c *conn, event string, payload interface{}) {
	data, err := dispatch.Encode(event, payload)
	if err != nil {
		g.log.Error("encode_failed", map[string]interface{}{"event": event, "error": err.Error()})
		return
	}
	c.Send(data)
}

// handlerError reports a mutation failure to the originating
// connection only; nothing fans out. Internal failures keep the loud
// log line; client mistakes stay at debug.
func (g *Gateway) handlerError(c *conn, op string, err error) {
	if errors.IsClass(err, errors.ClassInternal) {
		g.log.HandlerError(op, c.identity.ID.Hex(), err)
	} else {
		g.log.Debug("handler_rejected", map[string]interface{}{
			"op":    op,
			"actor": c.identity.ID.Hex(),
			"error": err.Error(),
		})
	}
	g.sendError(c, err)
}

func (g *Gateway) sendError(c *conn, err error) {
	data, encErr := dispatch.Encode(dispatch.EventTaskError, &dispatch.ErrorPayload{
		Message: errors.ClientMessage(err),
	})
	if encErr != nil {
		return
	}
	c.Send(data)
}
