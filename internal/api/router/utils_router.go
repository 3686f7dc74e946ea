package router

import (
	"net/http"
	"strings"

	"messaging-client/internal/api"
	"messaging-client/internal/api/endpoints"
)

func UtilsRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		utilsEndpoints := endpoints.NewUtilsEndpoints(s.Engine())
		mux.HandleFunc(strings.TrimRight(prefix, "/")+"/healthz", s.MakeHTTPHandleFunc(utilsEndpoints.Health))
	}
}
