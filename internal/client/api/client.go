// Package api is the HTTP client for the key distribution endpoints.
// Key material travels base64-encoded in the same wire shapes the
// server handlers accept.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrUserNotFound     = errors.New("no key bundle registered for user")
	ErrBundleIncomplete = errors.New("bundle is missing a signed prekey")
)

const (
	maxAttempts    = 3
	initialBackoff = 300 * time.Millisecond
)

type SignedPreKeyDTO struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type OneTimePreKeyDTO struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

type RegisterIdentityRequest struct {
	UserID         string `json:"userId"`
	PublicKey      string `json:"publicKey"`
	SigningKey     string `json:"signingKey"`
	RegistrationID uint32 `json:"registrationId"`
}

type UploadPreKeysRequest struct {
	UserID         string             `json:"userId"`
	SignedPreKey   SignedPreKeyDTO    `json:"signedPreKey"`
	OneTimePreKeys []OneTimePreKeyDTO `json:"oneTimePreKeys"`
}

type BundleResponse struct {
	IdentityKey    string            `json:"identityKey"`
	SigningKey     string            `json:"signingKey"`
	RegistrationID uint32            `json:"registrationId"`
	SignedPreKey   SignedPreKeyDTO   `json:"signedPreKey"`
	OneTimePreKey  *OneTimePreKeyDTO `json:"oneTimePreKey"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) RegisterIdentity(ctx context.Context, req RegisterIdentityRequest) error {
	return c.post(ctx, "/api/keys/identity", req)
}

func (c *Client) UploadPreKeys(ctx context.Context, req UploadPreKeysRequest) error {
	return c.post(ctx, "/api/keys/prekeys", req)
}

// FetchBundle retrieves and consumes a bundle for the peer. A nil
// OneTimePreKey in the response means the peer's pool is exhausted;
// the session can still be established.
func (c *Client) FetchBundle(ctx context.Context, userID string) (*BundleResponse, error) {
	var bundle BundleResponse
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/api/keys/bundle/"+url.PathEscape(userID), nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retryable(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// The server uses 404 both for a missing identity and a
			// missing signed prekey; the body message disambiguates.
			if bodyMentionsSignedPreKey(resp.Body) {
				return ErrBundleIncomplete
			}
			return ErrUserNotFound
		case resp.StatusCode >= 500:
			return retryable(fmt.Errorf("server error: %s", resp.Status))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("fetch bundle: unexpected status %s", resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(&bundle)
	})
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retryable(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return retryable(fmt.Errorf("server error: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
		}
		return nil
	})
}

type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

func retryable(err error) error { return retryableError{err: err} }

// retry runs fn up to maxAttempts times with exponential backoff, only
// for network and 5xx failures. Protocol errors surface immediately.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re retryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = re.err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func bodyMentionsSignedPreKey(r io.Reader) bool {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return false
	}
	return payload.Error == "Signed PreKey not found"
}
