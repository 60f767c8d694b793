package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for the registration gateway.
// Write timeout stays above the provider client timeout so slow sends fail
// with a provider error, not a dead connection.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
