package router

import (
	"net/http"
	"strings"

	"messaging-client/internal/api"
	"messaging-client/internal/relay"
)

// RelayRoutes serves the snapshot websocket. It bypasses the request queue
// because the connection outlives the request.
func RelayRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		if s.Hub() == nil {
			return
		}
		handler := relay.NewHandler(s.Hub(), s.AllowedOrigins())
		mux.HandleFunc(strings.TrimRight(prefix, "/")+"/ws", s.Wrap(handler.ServeHTTP))
	}
}
