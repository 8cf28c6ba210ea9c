package server

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter wires HTTP routes to the server's handlers. Requests are
// logged in combined log format to accessLog when it is non-nil.
func NewRouter(s *Server, accessLog io.Writer) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/manifest", s.handleManifest).Methods(http.MethodPost)
	r.HandleFunc("/artifacts", s.handleArtifactList).Methods(http.MethodGet)
	r.HandleFunc("/artifacts/{id:[0-9a-f]+}", s.handleArtifactDownload).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return h
}
