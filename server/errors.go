package server

import (
	"encoding/json"
	"net/http"

	"github.com/shaharia-lab/chatsvc"
)

const internalErrorType = "internal_error"

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorType string `json:"error_type"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps err to a status code and a user-facing body. Internal causes are never
// written to the response.
func writeError(w http.ResponseWriter, err error) {
	if chatErr, ok := chatsvc.AsChatError(err); ok {
		writeJSON(w, chatErr.StatusCode, errorResponse{
			Detail:    chatErr.Message,
			ErrorType: string(chatErr.Kind),
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Detail:    "internal server error",
		ErrorType: internalErrorType,
	})
}
