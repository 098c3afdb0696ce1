package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/veridian-systems/rowguard/internal/models"
)

// OpenSearchConfig holds connection settings for the OpenSearch sink.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// OpenSearchWriter appends violations to an OpenSearch index through the bulk
// API, reporting per-document failures individually.
type OpenSearchWriter struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchWriter connects to OpenSearch and verifies it responds.
func NewOpenSearchWriter(cfg OpenSearchConfig) (*OpenSearchWriter, error) {
	transport := &http.Transport{}
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	index := cfg.Index
	if index == "" {
		index = "rowguard-violations"
	}
	return &OpenSearchWriter{client: client, index: index}, nil
}

// Write bulk-indexes the batch. Per-document outcomes arrive through the bulk
// indexer's callbacks; the shared result is mutex-guarded because callbacks
// run on indexer worker goroutines.
func (w *OpenSearchWriter) Write(ctx context.Context, violations []models.Violation) (models.WriteResult, error) {
	var res models.WriteResult
	if len(violations) == 0 {
		return res, nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: w.client,
		Index:  w.index,
	})
	if err != nil {
		return res, fmt.Errorf("create bulk indexer: %w", err)
	}

	var mu sync.Mutex
	for _, v := range violations {
		v := v
		data, err := json.Marshal(v)
		if err != nil {
			res.Rejected++
			res.Rejections = append(res.Rejections, models.Rejection{
				ViolationID: v.ViolationID,
				Cause:       fmt.Sprintf("marshal violation: %v", err),
			})
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "create",
			DocumentID: v.ViolationID,
			Body:       bytes.NewReader(data),
			OnSuccess: func(_ context.Context, _ opensearchutil.BulkIndexerItem, _ opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				res.Written++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, item opensearchutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				res.Rejected++
				cause := ""
				if err != nil {
					cause = err.Error()
				} else {
					cause = fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason)
				}
				res.Rejections = append(res.Rejections, models.Rejection{
					ViolationID: v.ViolationID,
					Cause:       cause,
				})
			},
		})
		if err != nil {
			mu.Lock()
			res.Rejected++
			res.Rejections = append(res.Rejections, models.Rejection{
				ViolationID: v.ViolationID,
				Cause:       fmt.Sprintf("enqueue for bulk index: %v", err),
			})
			mu.Unlock()
		}
	}

	if err := bi.Close(ctx); err != nil {
		return res, fmt.Errorf("flush bulk indexer: %w", err)
	}
	return res, nil
}
