package server

import (
	"net/http"
	"time"

	"github.com/kon-rad/rudder-analytics-go/message"
	"github.com/kon-rad/rudder-analytics-go/wire"
)

func New(addr string, healthHandler http.HandlerFunc, ingestHandlers *IngestHandlers) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	if ingestHandlers != nil {
		for _, t := range message.Types {
			mux.HandleFunc("POST "+wire.Path(t), ingestHandlers.Post(t))
		}
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
