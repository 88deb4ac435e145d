package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SentinelConfig binds one Azure Log Analytics workspace (Sentinel's
// HTTP Data Collector API).
type SentinelConfig struct {
	WorkspaceID string
	SharedKey   string // base64-encoded, as issued by the Azure portal
	LogType     string
}

// SentinelSink implements the Azure Log Analytics HTTP Data Collector
// wire format: JSON array body, HMAC-SHA256 signature
// over `POST\n{len}\napplication/json\nx-ms-date:{date}\n/api/logs`.
type SentinelSink struct {
	cfg    SentinelConfig
	client *http.Client
}

// NewSentinelSink builds a SentinelSink bound to cfg.
func NewSentinelSink(cfg SentinelConfig) *SentinelSink {
	if cfg.LogType == "" {
		cfg.LogType = "OpenLabelsScanResults"
	}
	return &SentinelSink{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *SentinelSink) Name() string { return "sentinel" }

func (s *SentinelSink) ExportBatch(ctx context.Context, records []Record) (int, error) {
	events := make([]map[string]any, len(records))
	for i, r := range records {
		events[i] = r.ToMap()
	}
	body, err := json.Marshal(events)
	if err != nil {
		return 0, fmt.Errorf("encoding Sentinel batch: %w", err)
	}

	rfc1123Date := time.Now().UTC().Format(http.TimeFormat)
	signature, err := buildSentinelSignature(s.cfg.SharedKey, len(body), rfc1123Date)
	if err != nil {
		return 0, fmt.Errorf("signing Sentinel request: %w", err)
	}

	url := fmt.Sprintf("https://%s.ods.opinsights.azure.com/api/logs?api-version=2016-04-01", s.cfg.WorkspaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building Sentinel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Log-Type", s.cfg.LogType)
	req.Header.Set("x-ms-date", rfc1123Date)
	req.Header.Set("Authorization", fmt.Sprintf("SharedKey %s:%s", s.cfg.WorkspaceID, signature))
	req.Header.Set("time-generated-field", "timestamp")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting to Sentinel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Sentinel returned status %d", resp.StatusCode)
	}
	return len(records), nil
}

// buildSentinelSignature signs the Log Analytics string-to-sign with
// HMAC-SHA256.
func buildSentinelSignature(sharedKeyB64 string, contentLength int, rfc1123Date string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(sharedKeyB64)
	if err != nil {
		return "", fmt.Errorf("decoding shared key: %w", err)
	}
	stringToSign := "POST\n" + strconv.Itoa(contentLength) + "\napplication/json\nx-ms-date:" + rfc1123Date + "\n/api/logs"
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (s *SentinelSink) TestConnection(ctx context.Context) error {
	_, err := s.ExportBatch(ctx, nil)
	return err
}
