package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"taskhub/errors"
	"taskhub/identity"
	"taskhub/tasks"
)

// mutationFailed logs a failed mutation. Internal failures keep the
// loud log line; client mistakes stay at debug.
func (a *API) mutationFailed(op string, actor *identity.Identity, err error) {
	if errors.IsClass(err, errors.ClassInternal) {
		a.log.HandlerError(op, actor.ID.Hex(), err)
		return
	}
	a.log.Debug("handler_rejected", map[string]interface{}{
		"op":    op,
		"actor": actor.ID.Hex(),
		"error": err.Error(),
	})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	result, err := a.handlers.List(r.Context(), actor)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", result)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	view, err := a.handlers.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", view)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	stats, err := a.handlers.GetStats(r.Context(), actor)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", stats)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	var in tasks.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, errors.Validation("malformed request body"))
		return
	}

	result, err := a.handlers.Create(r.Context(), actor, in)
	if err != nil {
		a.mutationFailed("create", actor, err)
		fail(w, err)
		return
	}

	ok(w, http.StatusCreated, "task created", result.Task)
	a.dispatcher.Dispatch(result)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, errors.Validation("malformed request body"))
		return
	}

	in, err := tasks.ParseUpdateInput(body)
	if err != nil {
		fail(w, err)
		return
	}

	result, err := a.handlers.Update(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		a.mutationFailed("update", actor, err)
		fail(w, err)
		return
	}

	ok(w, http.StatusOK, "task updated", result.Task)
	a.dispatcher.Dispatch(result)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request, actor *identity.Identity) {
	result, err := a.handlers.Delete(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		a.mutationFailed("delete", actor, err)
		fail(w, err)
		return
	}

	ok(w, http.StatusOK, "task deleted", map[string]string{"taskId": result.TaskID})
	a.dispatcher.Dispatch(result)
}
