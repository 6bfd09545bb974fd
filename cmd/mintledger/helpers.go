package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/brojonat/mintledger/service/app"
	"github.com/brojonat/mintledger/service/config"
	"github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// cliLogger only reports errors; command output goes to the app's writer.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// configFromFlags builds the subset of service configuration the CLI needs.
// Batch sizes and confirmation settings stay at their defaults.
func configFromFlags(c *cli.Context) *config.Config {
	return &config.Config{
		Token:        c.String("token"),
		RPCURL:       rpcURL(c),
		RPCRPS:       c.Float64("rpc-rps"),
		StoreBackend: c.String("backend"),
		SQLitePath:   c.String("sqlite-path"),
		DatabaseURL:  c.String("database-url"),
	}
}

func rpcURL(c *cli.Context) string {
	if u := c.String("rpc-url"); u != "" {
		return u
	}
	if key := os.Getenv("RPC_KEY"); key != "" {
		return config.HeliusMainnetURL + key
	}
	return ""
}

// requireToken returns the validated --token value.
func requireToken(c *cli.Context) (string, error) {
	token := c.String("token")
	if token == "" {
		return "", fmt.Errorf("token is required (set TOKEN env var or use --token)")
	}
	if _, err := solana.PublicKeyFromBase58(token); err != nil {
		return "", fmt.Errorf("invalid token mint %q: %w", token, err)
	}
	return token, nil
}

func requireRPC(c *cli.Context) error {
	if rpcURL(c) == "" {
		return fmt.Errorf("rpc-url is required (set RPC_URL or RPC_KEY, or use --rpc-url)")
	}
	return nil
}

// getStore opens the ledger store selected by the global flags.
func getStore(c *cli.Context) (app.Store, error) {
	cfg := configFromFlags(c)
	if cfg.StoreBackend == config.BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	return app.OpenStore(context.Background(), cfg, nil, cliLogger())
}

// wantJSON reports whether output should be JSON.
func wantJSON(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// outputJSON writes v as indented JSON, or each result of --jq applied to it.
func outputJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")

	expr := c.String("jq")
	if expr == "" {
		return enc.Encode(v)
	}

	code, err := compileJQ(expr)
	if err != nil {
		return err
	}
	doc, err := toDocument(v)
	if err != nil {
		return err
	}
	iter := code.Run(doc)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq %q: %w", expr, err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
}

func compileJQ(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return code, nil
}

// toDocument converts v into the plain maps and slices gojq operates on.
func toDocument(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// jqMatcher reports whether a document satisfies every filter.
type jqMatcher []*gojq.Code

func newJQMatcher(filters []string) (jqMatcher, error) {
	m := make(jqMatcher, 0, len(filters))
	for _, f := range filters {
		code, err := compileJQ(f)
		if err != nil {
			return nil, err
		}
		m = append(m, code)
	}
	return m, nil
}

func (m jqMatcher) Match(doc interface{}) bool {
	for _, code := range m {
		v, ok := code.Run(doc).Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy follows jq: only false and null are false.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}
