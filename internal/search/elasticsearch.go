package search

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/config"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// ForwardedBatch is the audit document indexed after a successful ledger
// forward. It records the window and channel sizes, not row contents.
type ForwardedBatch struct {
	BatchID      string    `json:"batch_id"`
	Offset       int       `json:"offset"`
	Count        int       `json:"count"`
	RowsRead     int       `json:"rows_read"`
	AddGroups    int       `json:"add_groups"`
	UpdateGroups int       `json:"update_groups"`
	DeleteGroups int       `json:"delete_groups"`
	ForwardedAt  time.Time `json:"forwarded_at"`
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexForwardedBatch indexes an audit record of a forwarded ledger batch.
// Indexing is best-effort: callers log failures and move on.
func (c *ElasticClient) IndexForwardedBatch(ctx context.Context, batch *ForwardedBatch) error {
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}

	docJSON, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "failed to marshal batch audit document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: batch.BatchID,
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("batch_id", batch.BatchID).Int("rows", batch.RowsRead).Msg("Forwarded batch indexed")
	return nil
}
