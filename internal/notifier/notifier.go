package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"example.com/pxr/services/ctoken/config"
	"example.com/pxr/services/ctoken/internal/cmatrix"
)

// StoreEventNotification is the payload of the book-management service's
// store-event notification API: add and update echo the original
// submission, delete carries the reconstructed prior state.
type StoreEventNotification struct {
	Add    []cmatrix.Matrix `json:"add"`
	Update []cmatrix.Matrix `json:"update"`
	Delete []DeleteRecord   `json:"delete"`
}

// DeleteRecord carries the last known field values of a deleted
// (person, event, thing) grouping, keyed by the ledger's field tags.
type DeleteRecord struct {
	UserID   string            `json:"1_1"`
	Document []DeletedDocument `json:"document"`
	Event    *DeletedEvent     `json:"event"`
	Thing    []DeletedThing    `json:"thing"`
}

// DeletedDocument is a reconstructed document entry.
type DeletedDocument struct {
	SerialNumber         int64      `json:"serialNumber"`
	DocIdentifier        string     `json:"2_n_1_1"`
	DocCatalogCode       *int64     `json:"2_n_1_2_1"`
	DocCatalogVersion    *int64     `json:"2_n_1_2_2"`
	DocCreateAt          *time.Time `json:"2_n_2_1"`
	DocActorCode         *int64     `json:"2_n_3_1_1"`
	DocActorVersion      *int64     `json:"2_n_3_1_2"`
	DocAppCatalogCode    *int64     `json:"2_n_3_5_1"`
	DocAppCatalogVersion *int64     `json:"2_n_3_5_2"`
}

// DeletedEvent is a reconstructed event entry.
type DeletedEvent struct {
	EventIdentifier        string     `json:"3_1_1"`
	EventCatalogCode       *int64     `json:"3_1_2_1"`
	EventCatalogVersion    *int64     `json:"3_1_2_2"`
	EventStartAt           *time.Time `json:"3_2_1"`
	EventEndAt             *time.Time `json:"3_2_2"`
	EventActorCode         *int64     `json:"3_5_1_1"`
	EventActorVersion      *int64     `json:"3_5_1_2"`
	EventAppCatalogCode    *int64     `json:"3_5_5_1"`
	EventAppCatalogVersion *int64     `json:"3_5_5_2"`
}

// DeletedThing is a reconstructed thing entry.
type DeletedThing struct {
	ThingIdentifier        string     `json:"4_1_1"`
	ThingCatalogCode       *int64     `json:"4_1_2_1"`
	ThingCatalogVersion    *int64     `json:"4_1_2_2"`
	ThingActorCode         *int64     `json:"4_4_1_1"`
	ThingActorVersion      *int64     `json:"4_4_1_2"`
	ThingAppCatalogCode    *int64     `json:"4_4_5_1"`
	ThingAppCatalogVersion *int64     `json:"4_4_5_2"`
	RowHash                string     `json:"rowHash"`
	RowHashCreateAt        *time.Time `json:"rowHashCreateAt"`
}

// Notifier delivers store-event notifications to the book-management
// service. The contract is best-effort: callers run it without awaiting
// beyond logging failure, and a failed notification never affects
// already-committed state.
type Notifier interface {
	NotifyStoreEvent(ctx context.Context, payload *StoreEventNotification) error
}

// httpNotifier implements Notifier over HTTP.
type httpNotifier struct {
	client *http.Client
	url    string
}

// NewNotifier creates a new book-management notifier.
func NewNotifier(cfg config.BookManageConfig) Notifier {
	return &httpNotifier{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL + "/store-event/notificate",
	}
}

// NotifyStoreEvent posts the notification and requires a 2xx response.
func (n *httpNotifier) NotifyStoreEvent(ctx context.Context, payload *StoreEventNotification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal store-event notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build store-event notification request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to call book-manage service")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("store-event notification returned status %d", resp.StatusCode)
	}
	return nil
}
