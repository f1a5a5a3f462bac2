package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/woolstore/storefront/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindInsufficientStock, apperr.KindInvalidState, apperr.KindInvalidTransition, apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErr surfaces the kind and a human message; transient causes are
// logged server-side and replaced with a generic message so internals
// never reach the client.
func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	var body errBody
	body.Error.Kind = string(kind)
	if kind == apperr.KindTransient {
		log.Printf("internal error: %v", err)
		body.Error.Message = "temporary failure, please retry"
	} else {
		var e *apperr.Error
		if errors.As(err, &e) {
			body.Error.Message = e.Msg
		} else {
			body.Error.Message = err.Error()
		}
	}
	writeJSON(w, statusFor(kind), body)
}
