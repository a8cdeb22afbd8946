package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/logx"
)

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Credentials is the login request body sent to the backend.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticator exchanges credentials for a raw session token.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (string, error)
}

// Client talks to the backend REST API.
type Client struct {
	loginURL string
	http     *http.Client
	logger   zerolog.Logger
}

var _ Authenticator = (*Client)(nil)

// NewClient returns a client posting credentials to baseURL joined with loginPath.
func NewClient(baseURL, loginPath string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}

	login, err := base.Parse(loginPath)
	if err != nil {
		return nil, fmt.Errorf("parse login path: %w", err)
	}

	return &Client{
		loginURL: login.String(),
		http:     &http.Client{Timeout: timeout},
		logger:   logx.Component("backend"),
	}, nil
}

// Login posts creds and returns the token from the response body.
//
// The token is read from "token" or "accessToken", at the top level or nested under "data".
// 400, 401 and 403 answers are ErrInvalidCredentials; transport failures and any other
// non-2xx answer are ErrBackendUnavailable.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", errs.Wrap(errs.ErrUnknown, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrUnknown, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.http.Do(request)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.loginURL).Msg("Backend login request failed")
		return "", errs.Wrap(errs.ErrBackendUnavailable, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return "", errs.Wrap(errs.ErrBackendUnavailable, fmt.Errorf("read login response: %w", err))
	}

	c.logger.Debug().
		Int("status", response.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend login answered")

	switch {
	case response.StatusCode == http.StatusBadRequest,
		response.StatusCode == http.StatusUnauthorized,
		response.StatusCode == http.StatusForbidden:
		return "", errs.NewError(errs.ErrInvalidCredentials)
	case response.StatusCode < 200 || response.StatusCode > 299:
		return "", errs.Wrap(errs.ErrBackendUnavailable, fmt.Errorf("backend login returned HTTP %d", response.StatusCode))
	}

	raw, err := extractToken(payload)
	if err != nil {
		return "", errs.Wrap(errs.ErrTokenMalformed, err)
	}
	return raw, nil
}

var tokenFields = []string{"token", "accessToken"}

func extractToken(payload []byte) (string, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}

	if raw, ok := tokenField(body); ok {
		return raw, nil
	}

	if nested, ok := body["data"]; ok {
		var data map[string]json.RawMessage
		if err := json.Unmarshal(nested, &data); err == nil {
			if raw, ok := tokenField(data); ok {
				return raw, nil
			}
		}
	}

	return "", errors.New("login response carries no token")
}

func tokenField(body map[string]json.RawMessage) (string, bool) {
	for _, field := range tokenFields {
		value, ok := body[field]
		if !ok {
			continue
		}

		var raw string
		if err := json.Unmarshal(value, &raw); err != nil {
			continue
		}
		if raw = strings.TrimSpace(raw); raw != "" {
			return raw, true
		}
	}
	return "", false
}
