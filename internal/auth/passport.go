package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// PassportVerifier checks personhood proofs against the Human Passport API.
type PassportVerifier struct {
	verifyURL string
	apiKey    string
	client    *http.Client
	logger    *logger.Logger
}

// NewPassportVerifier creates a verifier from configuration.
func NewPassportVerifier(cfg *config.PassportConfig, log *logger.Logger) *PassportVerifier {
	return &PassportVerifier{
		verifyURL: cfg.VerifyURL,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    log,
	}
}

type passportResponse struct {
	Valid bool    `json:"valid"`
	Score float64 `json:"score"`
}

// Verify submits the proof and reports whether the holder passed.
func (v *PassportVerifier) Verify(ctx context.Context, address, proof string) (bool, error) {
	payload, err := json.Marshal(map[string]string{
		"address": address,
		"proof":   proof,
	})
	if err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "failed to encode passport request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "failed to build passport request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "passport service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, types.NewInternalError(types.ErrCodeInternalError,
			fmt.Sprintf("passport service returned HTTP %d", resp.StatusCode), nil)
	}

	var result passportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "malformed passport response", err)
	}

	v.logger.WithFields(map[string]interface{}{
		"address": address,
		"valid":   result.Valid,
		"score":   result.Score,
	}).Info("Passport verification completed")

	return result.Valid, nil
}
