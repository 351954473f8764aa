package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// DefaultRemoteTimeout bounds one call to the validation endpoint.
const DefaultRemoteTimeout = 5 * time.Second

const maxValidationBody = 1 << 20

// Remote delegates validation to an HTTP endpoint: GET url with the caller's
// Authorization header. A 200 response carries the claims either at "payload"
// or inside a JSON-encoded string "body" that holds "payload".
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a Remote validator. client can be nil.
func NewRemote(url string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	return &Remote{url: url, client: client}
}

// Validate implements Validator.
func (v *Remote) Validate(ctx context.Context, authorization string) (Principal, error) {
	if bearerToken(authorization) == "" {
		return Principal{}, fmt.Errorf("%w: missing credentials", domain.ErrUnauthenticated)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, http.NoBody)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: build request: %w", domain.ErrUnauthenticated, err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := v.client.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: validate: %w", domain.ErrUnauthenticated, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Principal{}, fmt.Errorf("%w: validator returned %d", domain.ErrUnauthenticated, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxValidationBody))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: read response: %w", domain.ErrUnauthenticated, err)
	}

	claims, err := payloadOf(data)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	p, ok := claimsPrincipal(claims)
	if !ok {
		return Principal{}, fmt.Errorf("%w: no tenant in token payload", domain.ErrUnauthenticated)
	}
	return p, nil
}

type validationResponse struct {
	Payload map[string]any  `json:"payload"`
	Body    json.RawMessage `json:"body"`
}

// payloadOf extracts the claims from either response shape.
func payloadOf(data []byte) (map[string]any, error) {
	var r validationResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Payload != nil {
		return r.Payload, nil
	}
	if len(r.Body) == 0 {
		return nil, fmt.Errorf("response has no payload")
	}

	// body is usually a JSON string holding the real document; accept an object too
	inner := []byte(r.Body)
	var s string
	if err := json.Unmarshal(r.Body, &s); err == nil {
		inner = []byte(s)
	}
	var wrapped validationResponse
	if err := json.Unmarshal(inner, &wrapped); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if wrapped.Payload == nil {
		return nil, fmt.Errorf("body has no payload")
	}
	return wrapped.Payload, nil
}
