package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Client is the registry bridge contract. Implementations perform a single
// call per invocation; retry policy belongs to callers.
type Client interface {
	// Register anchors a resource on the registry and returns the
	// transaction reference.
	Register(ctx context.Context, resourceID, contentAddress, cipherDigest, metadata string) (string, error)

	// Grant records an access grant on the registry.
	Grant(ctx context.Context, resourceID, grantee, encryptedKey string) (string, error)

	// Revoke records an access revocation on the registry.
	Revoke(ctx context.Context, resourceID, grantee string) (string, error)

	// FetchEvents returns up to limit events whose stream ordinal is
	// fromIndex or later, in ascending order.
	FetchEvents(ctx context.Context, fromIndex uint64, limit int) ([]*types.LedgerEvent, error)
}

// RPC method names exposed by the registry bridge.
const (
	methodRegisterResource = "medisecure_registerResource"
	methodGrantAccess      = "medisecure_grantAccess"
	methodRevokeAccess     = "medisecure_revokeAccess"
	methodGetEvents        = "medisecure_getEvents"
)

// HTTPClient talks JSON-RPC 2.0 to the registry bridge over HTTP.
type HTTPClient struct {
	endpoint string
	contract string
	client   *http.Client
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector
	nextID   uint64
}

// NewHTTPClient creates a bridge client from configuration.
func NewHTTPClient(cfg *config.LedgerConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *HTTPClient {
	timeout := time.Duration(cfg.CallTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		endpoint: cfg.Endpoint,
		contract: cfg.ContractAddress,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
		metrics:  metrics,
	}
}

// Enabled reports whether a bridge endpoint is configured.
func (c *HTTPClient) Enabled() bool {
	return c.endpoint != ""
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type txResult struct {
	TxRef string `json:"tx_ref"`
}

type eventsResult struct {
	Events []*types.LedgerEvent `json:"events"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c.endpoint == "" {
		return types.NewChainError(types.ErrCodeChainCallFailed, "ledger bridge is not configured", nil)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode bridge request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to build bridge request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewChainError(types.ErrCodeChainCallFailed, "ledger bridge unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return types.NewChainError(types.ErrCodeChainCallFailed, "failed to read bridge response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return types.NewChainError(types.ErrCodeChainCallFailed,
			fmt.Sprintf("ledger bridge returned HTTP %d", resp.StatusCode), nil)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return types.NewChainError(types.ErrCodeChainCallFailed, "malformed bridge response", err)
	}
	if rpcResp.Error != nil {
		return types.NewChainError(types.ErrCodeChainCallFailed,
			fmt.Sprintf("bridge error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message), nil)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return types.NewChainError(types.ErrCodeChainCallFailed, "malformed bridge result", err)
		}
	}
	return nil
}

// submit performs a state-changing call and returns the transaction reference.
func (c *HTTPClient) submit(ctx context.Context, operation, method string, params []interface{}) (string, error) {
	start := time.Now()

	var result txResult
	err := c.call(ctx, method, params, &result)
	duration := time.Since(start)

	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordLedgerCall(operation, status, duration)
	}

	if err != nil {
		c.logger.LedgerTransaction(operation, "", false, map[string]interface{}{
			"error": err.Error(),
		})
		return "", err
	}

	if result.TxRef == "" {
		err := types.NewChainError(types.ErrCodeChainCallFailed, "bridge returned empty transaction reference", nil)
		c.logger.LedgerTransaction(operation, "", false, map[string]interface{}{
			"error": err.Error(),
		})
		return "", err
	}

	c.logger.LedgerTransaction(operation, result.TxRef, true, map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
	})
	return result.TxRef, nil
}

// Register anchors a resource registration on the ledger.
func (c *HTTPClient) Register(ctx context.Context, resourceID, contentAddress, cipherDigest, metadata string) (string, error) {
	return c.submit(ctx, "register_resource", methodRegisterResource,
		[]interface{}{c.contract, resourceID, contentAddress, cipherDigest, metadata})
}

// Grant records an access grant on the ledger.
func (c *HTTPClient) Grant(ctx context.Context, resourceID, grantee, encryptedKey string) (string, error) {
	return c.submit(ctx, "grant_access", methodGrantAccess,
		[]interface{}{c.contract, resourceID, grantee, encryptedKey})
}

// Revoke records an access revocation on the ledger.
func (c *HTTPClient) Revoke(ctx context.Context, resourceID, grantee string) (string, error) {
	return c.submit(ctx, "revoke_access", methodRevokeAccess,
		[]interface{}{c.contract, resourceID, grantee})
}

// FetchEvents pulls a batch of registry events starting at fromIndex.
func (c *HTTPClient) FetchEvents(ctx context.Context, fromIndex uint64, limit int) ([]*types.LedgerEvent, error) {
	start := time.Now()

	var result eventsResult
	err := c.call(ctx, methodGetEvents, []interface{}{c.contract, fromIndex, limit}, &result)

	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordLedgerCall("get_events", status, time.Since(start))
	}

	if err != nil {
		return nil, err
	}
	return result.Events, nil
}
