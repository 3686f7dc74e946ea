package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"messaging-client/internal/api/middleware"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// MakeHTTPHandleFunc runs f on the request queue, one request at a time, and
// renders a returned error as ApiError JSON.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, extra ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)
		if err := s.requests.Enqueue(r.Context(), func() { errc <- f(w, r) }); err != nil {
			s.writeError(w, &HTTPError{
				StatusCode: http.StatusServiceUnavailable,
				Message:    "Server is shutting down",
				ErrorLog:   err,
			})
			return
		}
		if err := <-errc; err != nil {
			s.writeError(w, err)
		}
	}
	return s.Wrap(baseHandler, extra...)
}

// Wrap applies the common middleware stack without queueing. Long-lived
// handlers such as the websocket relay use it directly.
func (s *APIServer) Wrap(h http.HandlerFunc, extra ...middleware.Middleware) http.HandlerFunc {
	middlewares := []middleware.Middleware{
		middleware.CORS(middleware.DefaultCORSConfig(s.allowedOrigins)),
		middleware.Logging(s.logger),
		middleware.ValidateBridgeToken(s.bridgeToken),
	}
	return middleware.Chain(h, append(middlewares, extra...)...)
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		s.logger.Error("unhandled error", zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
		return
	}
	if httpErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", httpErr.StatusCode), zap.Error(httpErr.ErrorLog))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", httpErr.StatusCode), zap.Error(httpErr.ErrorLog))
	}
	WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message, Code: httpErr.Code})
}
