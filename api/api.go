package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/tictactoe/session"
	"github.com/duelgrid/tictactoe/websocket"
)

// StartAPI wires the router and blocks serving on addr.
func StartAPI(addr string, coordinator *session.Coordinator, registry *session.Registry) error {
	r := mux.NewRouter() // Create a new router

	wsHandler := websocket.NewHandler(coordinator)
	r.HandleFunc("/ws", wsHandler.GameWebSocketHandler)
	r.HandleFunc("/healthz", healthHandler(registry)).Methods("GET")

	chain := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CustomLoggingHandler(io.Discard, r, logRequest),
	)

	log.Info().Str("addr", addr).Msg("Server listening")
	return http.ListenAndServe(addr, chain)
}

func healthHandler(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			Status   string `json:"status"`
			Sessions int    `json:"sessions"`
		}{
			Status:   "ok",
			Sessions: registry.Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	log.Info().
		Str("method", params.Request.Method).
		Str("path", params.URL.Path).
		Int("status", params.StatusCode).
		Int("size", params.Size).
		Msg("HTTP request")
}
