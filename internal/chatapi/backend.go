package chatapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// NewMockHandler serves POST /chat with the mock replies. It speaks the same
// wire format as the remote endpoint, so it doubles as a local backend.
func NewMockHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		log.Debug().
			Int("history_len", len(req.History)).
			Msg("mock backend received chat request")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Response: buildMockReply(strings.TrimSpace(req.Message), req.Turns()),
			Role:     "model",
		})
	})
	return r
}
