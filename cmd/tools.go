package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gt8004/gt8004-go/pkg/ai"
	"github.com/gt8004/gt8004-go/pkg/middleware"
	"github.com/rs/zerolog"
)

const (
	chatModel      = "gpt-4o-mini"
	chatPricePer1k = 0.001
	premiumPrice   = "0.01"
)

// newTools serves the demo agent's tools. Each path segment is one tool, which
// is what the capture middleware reports as the tool name. paymentHeader is
// the header /premium reads payments from; empty means the default.
func newTools(log zerolog.Logger, paymentHeader string) http.Handler {
	if paymentHeader == "" {
		paymentHeader = middleware.DefaultPaymentHeader
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", handleChat(log))
	mux.HandleFunc("/search", handleSearch)
	mux.HandleFunc("/premium", handlePremium(paymentHeader))
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "simulated failure"})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func handleChat(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Message string `json:"message"`
			Model   string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
			return
		}
		if req.Model == "" {
			req.Model = chatModel
		}

		tokens, err := ai.CountTokens(req.Model, req.Message)
		if err != nil {
			log.Warn().Err(err).Msg("token count failed")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "tokenizer unavailable"})
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"reply":          "echo: " + req.Message,
			"model":          req.Model,
			"tokens":         tokens,
			"estimated_cost": ai.EstimateCost(tokens, chatPricePer1k),
		})
	}
}

func handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "q parameter required"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query": q,
		"results": []map[string]string{
			{"title": "Result for " + q, "url": "https://example.com/search?q=" + q},
		},
	})
}

// handlePremium answers 402 with payment requirements until the caller
// presents a decodable payment header.
func handlePremium(header string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payment, ok := middleware.ParsePayment(r.Header.Get(header))
		if !ok {
			respondJSON(w, http.StatusPaymentRequired, map[string]interface{}{
				"x402Version": 1,
				"accepts": []map[string]string{{
					"scheme":            "exact",
					"network":           "base-sepolia",
					"maxAmountRequired": premiumPrice,
					"asset":             "USDC",
				}},
			})
			return
		}

		body := map[string]interface{}{"content": "premium insight"}
		if payment.TxHash != nil {
			body["receipt"] = *payment.TxHash
		}
		respondJSON(w, http.StatusOK, body)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
