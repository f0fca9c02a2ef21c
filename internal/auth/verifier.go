// Package auth verifies bearer tokens issued by the external identity
// provider. The service never mints tokens itself; it only maps a token to
// a user id or rejects it.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken is returned for missing, expired, or unknown tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier maps a bearer token to a verified user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticVerifier verifies tokens against a fixed token→user map with
// timing-safe comparison. Used in tests and single-box deployments where
// tokens are provisioned out of band.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier over the given token→user map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	if tokens == nil {
		tokens = make(map[string]string)
	}
	return &StaticVerifier{tokens: tokens}
}

// Verify implements Verifier.
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	for t, user := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", ErrInvalidToken
}

// RemoteVerifier verifies tokens against the identity provider's
// verification endpoint. The endpoint receives the token as a bearer
// header and answers {"user_id": "..."} on success.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVerifier creates a verifier calling the given endpoint URL.
func NewRemoteVerifier(endpoint string) *RemoteVerifier {
	return &RemoteVerifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify implements Verifier.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling identity provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.UserID == "" {
			return "", ErrInvalidToken
		}
		return body.UserID, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	default:
		return "", fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}
}
