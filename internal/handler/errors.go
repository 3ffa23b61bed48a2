package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

// statusFor maps a use-case error to an HTTP status code.
func statusFor(err error) int {
	var bre *badRequestError
	switch {
	case errors.As(err, &bre), errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with {"code":..., "message":...}. Internal errors are
// logged and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}
