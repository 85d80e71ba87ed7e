package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/config"
)

// Failure classes of a ledger call. Callers roll their enclosing
// transaction back on either of them.
var (
	// ErrRejected is returned for client-error class responses.
	ErrRejected = errors.New("ledger rejected the request")
	// ErrUnavailable is returned for server-error class responses and
	// connection failures.
	ErrUnavailable = errors.New("ledger service unavailable")
)

// Client posts differential registrations to the CToken ledger service.
type Client interface {
	PostLocal(ctx context.Context, req *Request) error
}

// httpClient implements Client over HTTP.
type httpClient struct {
	client *http.Client
	url    string
}

// NewClient creates a new ledger client.
func NewClient(cfg config.LedgerConfig) Client {
	return &httpClient{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
	}
}

// PostLocal calls the ledger's differential registration API. A 2xx
// response is required; 400 and 404 map to ErrRejected, 5xx and transport
// failures to ErrUnavailable, any other non-2xx to ErrRejected.
func (c *httpClient) PostLocal(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to marshal ledger request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build ledger request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		log.Error().Int("status", resp.StatusCode).Msg("Ledger rejected differential registration")
		return errors.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		log.Error().Int("status", resp.StatusCode).Msg("Ledger service returned server error")
		return errors.Wrapf(ErrUnavailable, "status %d", resp.StatusCode)
	default:
		log.Error().Int("status", resp.StatusCode).Msg("Unexpected ledger response")
		return errors.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	}
}
