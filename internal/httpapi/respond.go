// Package httpapi wires C1-C12 into the HTTP surface spec.md §6 names,
// adapted from the teacher repo's cmd/gateway/internal/handlers package:
// one handler struct per concern, JSON request/response DTOs, errors
// mapped through apperr.Kind.HTTPStatus.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dorianinnovations/Server/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeJSON(w, appErr.Kind.HTTPStatus(), errorBody{Error: errorDetail{Kind: string(appErr.Kind), Message: appErr.Message}})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Kind: string(apperr.KindInternal), Message: "internal error"}})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "malformed JSON body", err)
	}
	return nil
}
