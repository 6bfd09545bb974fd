package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brojonat/mintledger/service/monitor"
)

const maxWebhookBodySize = 10 << 20

// Ingester applies webhook-delivered signatures to the ledger.
type Ingester interface {
	Ingest(ctx context.Context, signatures []string) (monitor.IngestResult, error)
}

// webhookTransaction is the part of an enhanced-transaction delivery we read.
type webhookTransaction struct {
	Transaction struct {
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
}

type webhookResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Result  *monitor.IngestResult `json:"result,omitempty"`
}

// handleProgramListener returns a handler for webhook deliveries. The
// Authorization header must equal key.
// POST /programListener
func handleProgramListener(ingester Ingester, key string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth == "" || auth != key {
			logger.WarnContext(r.Context(), "unauthorized webhook request", "remote_addr", r.RemoteAddr)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		var delivery []webhookTransaction
		if err := json.NewDecoder(r.Body).Decode(&delivery); err != nil {
			logger.DebugContext(r.Context(), "invalid webhook body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		var signatures []string
		for _, tx := range delivery {
			signatures = append(signatures, tx.Transaction.Signatures...)
		}

		// the sender may hang up while confirmations are polled; finish anyway
		ctx := context.WithoutCancel(r.Context())
		result, err := ingester.Ingest(ctx, signatures)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to process webhook delivery", "signatures", len(signatures), "error", err)
			writeJSON(w, webhookResponse{Success: false, Message: "failed to process transactions"}, http.StatusInternalServerError)
			return
		}

		if result.Confirmed == 0 {
			writeJSON(w, webhookResponse{Success: false, Message: "no transactions were confirmed", Result: &result}, http.StatusOK)
			return
		}
		writeJSON(w, webhookResponse{Success: true, Message: "transactions processed successfully", Result: &result}, http.StatusOK)
	})
}
