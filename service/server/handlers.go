package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/brojonat/mintledger/service/ledger"
)

const (
	maxAddressLength  = 100 // base58 keys are at most 44 chars
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleGetTokenAccount returns a handler that fetches one token account.
// GET /token-account/{address}
func handleGetTokenAccount(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		acct, err := store.GetAccount(r.Context(), address)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, "token account not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get token account", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, acct, http.StatusOK)
	})
}

// handleGetBalance returns a handler that reports one account's raw balance.
// GET /balance/{address}
func handleGetBalance(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		acct, err := store.GetAccount(r.Context(), address)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, "balance not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get balance", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, ledger.Balance{Address: address, Balance: acct.Balance}, http.StatusOK)
	})
}

// handleGetMint returns a handler that fetches mint metadata.
// GET /mint/{mint}
func handleGetMint(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")
		if err := validateAddress(mint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		m, err := store.GetMint(r.Context(), mint)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, "mint not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get mint", "mint", mint, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, m, http.StatusOK)
	})
}

// handleListBalances returns a handler that maps every address to its balance.
// GET /all-balances
func handleListBalances(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		balances, err := store.ListBalances(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list balances", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make(map[string]string, len(balances))
		for _, b := range balances {
			resp[b.Address] = b.Balance
		}
		logger.DebugContext(r.Context(), "balances listed", "count", len(resp))
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListAccounts returns a handler that lists every token account.
// GET /all-accounts
func handleListAccounts(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accounts, err := store.ListAccounts(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list accounts", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if accounts == nil {
			accounts = []ledger.Account{}
		}
		writeJSON(w, accounts, http.StatusOK)
	})
}

// handleListEvents returns a handler that queries the event log.
// GET /events?address=ADDRESS&signature=SIG&type=TYPE&limit=N
func handleListEvents(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := ledger.EventFilter{
			Address:   query.Get("address"),
			Signature: query.Get("signature"),
			Type:      ledger.EventType(query.Get("type")),
			Limit:     defaultEventLimit,
		}

		if filter.Address != "" {
			if err := validateAddress(filter.Address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if filter.Signature != "" && !validAddressRegex.MatchString(filter.Signature) {
			writeError(w, "invalid signature format: must contain only valid base58 characters", http.StatusBadRequest)
			return
		}
		if filter.Type != "" && !filter.Type.Valid() {
			writeError(w, fmt.Sprintf("invalid type %q", filter.Type), http.StatusBadRequest)
			return
		}
		if limitStr := query.Get("limit"); limitStr != "" {
			limit, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if limit < 1 || limit > maxEventLimit {
				writeError(w, fmt.Sprintf("limit must be between 1 and %d", maxEventLimit), http.StatusBadRequest)
				return
			}
			filter.Limit = limit
		}

		events, err := store.ListEvents(r.Context(), filter)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list events", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []ledger.Event{}
		}
		logger.DebugContext(r.Context(), "events listed", "count", len(events))
		writeJSON(w, events, http.StatusOK)
	})
}

// writeJSON writes data as a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress checks that address looks like a base58 public key.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return errors.New("invalid address format: must contain only valid base58 characters")
	}
	return nil
}
