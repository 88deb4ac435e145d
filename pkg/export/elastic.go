package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ElasticConfig binds one Elasticsearch cluster's _bulk endpoint.
type ElasticConfig struct {
	URL         string
	APIKey      string
	IndexPrefix string // e.g. "openlabels-scan-results"
}

// ElasticSink implements the _bulk NDJSON wire format: alternating
// index-action and document lines, date-suffixed index.
type ElasticSink struct {
	cfg    ElasticConfig
	client *http.Client
}

// NewElasticSink builds an ElasticSink bound to cfg.
func NewElasticSink(cfg ElasticConfig) *ElasticSink {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "openlabels-scan-results"
	}
	return &ElasticSink{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *ElasticSink) Name() string { return "elastic" }

type bulkIndexAction struct {
	Index bulkIndexTarget `json:"index"`
}

type bulkIndexTarget struct {
	Index string `json:"_index"`
}

func (s *ElasticSink) ExportBatch(ctx context.Context, records []Record) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		index := s.cfg.IndexPrefix + "-" + r.Timestamp.UTC().Format("2006.01.02")
		if err := enc.Encode(bulkIndexAction{Index: bulkIndexTarget{Index: index}}); err != nil {
			return 0, fmt.Errorf("encoding bulk index action: %w", err)
		}
		doc := r.ToMap()
		doc["@timestamp"] = r.Timestamp.UTC().Format(time.RFC3339)
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("encoding bulk document: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/_bulk", &buf)
	if err != nil {
		return 0, fmt.Errorf("building bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to Elasticsearch _bulk: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Elasticsearch _bulk returned status %d", resp.StatusCode)
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				Status int `json:"status"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decoding bulk response: %w", err)
	}
	if !result.Errors {
		return len(records), nil
	}
	sent := 0
	for _, item := range result.Items {
		if item.Index.Status < 300 {
			sent++
		}
	}
	return sent, nil
}

func (s *ElasticSink) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"/_cluster/health", nil)
	if err != nil {
		return err
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching Elasticsearch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("Elasticsearch health check returned status %d", resp.StatusCode)
	}
	return nil
}
