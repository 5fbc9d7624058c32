package enqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Enqueuer = (*HTTPEnqueuer)(nil)

// HTTPEnqueuer triggers processing by POSTing to a remote invoke endpoint,
// authenticated with a short-lived HS256 bearer token. Used when the worker
// fleet sits behind its own ingress rather than sharing a queue backend.
type HTTPEnqueuer struct {
	endpoint string
	secret   []byte
	issuer   string
	client   *http.Client
}

// HTTPEnqueuerConfig holds HTTP enqueuer configuration
type HTTPEnqueuerConfig struct {
	// Endpoint is the full invoke URL (e.g. https://workers.internal/invoke)
	Endpoint string

	// Secret signs the bearer token. Must match the receiver's key.
	Secret string

	// Issuer is the iss claim on issued tokens
	Issuer string

	// Timeout bounds the invoke request. Defaults to 10s.
	Timeout time.Duration
}

type invokeRequest struct {
	EditionID string `json:"edition_id"`
	RunID     string `json:"run_id"`
}

// NewHTTPEnqueuer creates an enqueuer that calls a remote invoke endpoint
func NewHTTPEnqueuer(cfg HTTPEnqueuerConfig) *HTTPEnqueuer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "codex-ingest"
	}

	return &HTTPEnqueuer{
		endpoint: cfg.Endpoint,
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		client:   &http.Client{Timeout: timeout},
	}
}

// EnqueueRun POSTs the run to the invoke endpoint
func (e *HTTPEnqueuer) EnqueueRun(ctx context.Context, editionID, runID string) error {
	body, err := json.Marshal(invokeRequest{EditionID: editionID, RunID: runID})
	if err != nil {
		return err
	}

	token, err := e.signToken(runID)
	if err != nil {
		return fmt.Errorf("sign invoke token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("invoke worker: status %d: %s", resp.StatusCode, detail)
	}

	return nil
}

func (e *HTTPEnqueuer) signToken(runID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": e.issuer,
		"sub": runID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
}
