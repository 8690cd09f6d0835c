package httpapi

import (
	"encoding/json"
	"net/http"

	"taskhub/errors"
)

// response is the envelope every endpoint answers with.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func ok(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, &response{Success: true, Message: message, Data: data})
}

// fail maps a handler error onto the wire: status from the error code,
// message from the client-safe text, offending field names when the
// error carries them.
func fail(w http.ResponseWriter, err error) {
	resp := &response{Success: false, Message: errors.ClientMessage(err)}
	if e := errors.AsError(err); e != nil {
		resp.Errors = e.Fields()
	}
	writeJSON(w, errors.HTTPStatus(err), resp)
}
