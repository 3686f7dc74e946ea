package router

import (
	"net/http"
	"strings"

	"messaging-client/internal/api"
	"messaging-client/internal/api/endpoints"
)

func SessionRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		prefix := strings.TrimRight(prefix, "/")
		sessionEndpoints := endpoints.NewSessionEndpoints(s.Engine(), s.Deployment())

		mux.HandleFunc(prefix+"/session", s.MakeHTTPHandleFunc(sessionEndpoints.Session))
		mux.HandleFunc(prefix+"/session/reset", s.MakeHTTPHandleFunc(sessionEndpoints.ResetSession))
		mux.HandleFunc(prefix+"/prechat", s.MakeHTTPHandleFunc(sessionEndpoints.Prechat))
		mux.HandleFunc(prefix+"/messages", s.MakeHTTPHandleFunc(sessionEndpoints.Messages))
		mux.HandleFunc(prefix+"/messages/retry", s.MakeHTTPHandleFunc(sessionEndpoints.RetryMessage))
		mux.HandleFunc(prefix+"/typing", s.MakeHTTPHandleFunc(sessionEndpoints.Typing))
		mux.HandleFunc(prefix+"/conversation", s.MakeHTTPHandleFunc(sessionEndpoints.Conversation))
	}
}
