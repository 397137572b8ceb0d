package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.PaymentDeclined:
		return http.StatusPaymentRequired
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Dependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err for the caller. Only the code, message and details
// of an *apperr.Error leave the process; causes go to the log.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.Error("unhandled error", zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
		return
	}
	code := statusFor(e.Kind)
	if code >= http.StatusInternalServerError || e.Err != nil {
		log.Warn("request failed", zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path), zap.String("code", e.Code), zap.Error(err))
	}
	writeJSON(w, code, errorBody{Code: e.Code, Message: e.Message, Details: e.Details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validationf("invalid_json", "request body is not valid JSON")
}

func forbidden() error {
	return apperr.New(apperr.Forbidden, "forbidden", "not allowed to perform this action")
}
