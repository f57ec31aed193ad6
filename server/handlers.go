package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/shaharia-lab/chatsvc"
)

// completionRequest is the JSON form of a completion call. Form-encoded bodies use the
// same field names.
type completionRequest struct {
	Message   string `json:"message"`
	ModelType string `json:"model_type,omitempty"`
}

type historyResponse struct {
	Messages []chatsvc.Message `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	req, err := s.decodeCompletionRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, chatsvc.NewInvalidInputError("message is required"))
		return
	}

	var override *chatsvc.ModelType
	if req.ModelType != "" {
		model, err := chatsvc.ParseModelType(req.ModelType)
		if err != nil {
			writeError(w, err)
			return
		}
		override = &model
	}

	result, err := s.chat.GetCompletion(r.Context(), userID, req.Message, override)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) decodeCompletionRequest(w http.ResponseWriter, r *http.Request) (completionRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBodySize)

	var req completionRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, decodeError(err)
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(s.opts.MaxRequestBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, decodeError(err)
	}
	req.Message = r.PostFormValue("message")
	req.ModelType = r.PostFormValue("model_type")
	return req, nil
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return chatsvc.NewInvalidInputError("request body too large")
	}
	return chatsvc.NewInvalidInputError("malformed request body")
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	messages, err := s.chat.GetHistory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	if err := s.chat.ClearHistory(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
