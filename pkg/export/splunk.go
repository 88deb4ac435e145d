package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SplunkConfig binds one Splunk HTTP Event Collector endpoint.
type SplunkConfig struct {
	URL        string
	Token      string
	Index      string
	Sourcetype string
	Source     string
}

// SplunkSink implements the Splunk HEC wire format: newline-delimited
// JSON, Bearer auth, capped at 500 events per request.
type SplunkSink struct {
	cfg    SplunkConfig
	client *http.Client
}

// NewSplunkSink builds a SplunkSink bound to cfg.
func NewSplunkSink(cfg SplunkConfig) *SplunkSink {
	return &SplunkSink{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *SplunkSink) Name() string      { return "splunk" }
func (s *SplunkSink) MaxBatchSize() int { return 500 }

type splunkHECEvent struct {
	Event      map[string]any `json:"event"`
	Time       int64          `json:"time"`
	Sourcetype string         `json:"sourcetype,omitempty"`
	Index      string         `json:"index,omitempty"`
	Source     string         `json:"source,omitempty"`
}

func (s *SplunkSink) ExportBatch(ctx context.Context, records []Record) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		evt := splunkHECEvent{
			Event:      r.ToMap(),
			Time:       r.Timestamp.Unix(),
			Sourcetype: s.cfg.Sourcetype,
			Index:      s.cfg.Index,
			Source:     s.cfg.Source,
		}
		if err := enc.Encode(evt); err != nil {
			return 0, fmt.Errorf("encoding HEC event: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/services/collector/event", &buf)
	if err != nil {
		return 0, fmt.Errorf("building HEC request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to Splunk HEC: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Splunk HEC returned status %d", resp.StatusCode)
	}
	return len(records), nil
}

func (s *SplunkSink) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"/services/collector/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching Splunk HEC: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("Splunk HEC health check returned status %d", resp.StatusCode)
	}
	return nil
}
