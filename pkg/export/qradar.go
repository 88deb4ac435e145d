package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

// QRadarConfig binds one QRadar syslog listener.
type QRadarConfig struct {
	Host   string
	Port   int
	UseTLS bool
	// Proto is "tcp" or "udp"; TCP is used when empty since it carries
	// delivery confirmation the LEEF collector relies on.
	Proto string
}

// leefFieldOrder fixes the extension key order for every exported
// event so successive lines from the same sink are easy to diff.
var leefFieldOrder = []string{
	"tenantId", "jobId", "devTime", "filePath", "riskScore", "riskTier",
	"exposureLevel", "policyViolations",
}

// QRadarSink implements the LEEF-over-syslog wire format: one event
// per connection write, tab-separated key=value extension, optional
// TLS.
type QRadarSink struct {
	cfg QRadarConfig
}

// NewQRadarSink builds a QRadarSink bound to cfg.
func NewQRadarSink(cfg QRadarConfig) *QRadarSink {
	if cfg.Proto == "" {
		cfg.Proto = "tcp"
	}
	return &QRadarSink{cfg: cfg}
}

func (s *QRadarSink) Name() string { return "qradar" }

func (s *QRadarSink) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	d := net.Dialer{Timeout: 30 * time.Second}
	if s.cfg.UseTLS {
		return tls.DialWithDialer(&d, s.cfg.Proto, addr, &tls.Config{ServerName: s.cfg.Host})
	}
	return d.DialContext(ctx, s.cfg.Proto, addr)
}

func (s *QRadarSink) ExportBatch(ctx context.Context, records []Record) (int, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return 0, fmt.Errorf("dialing QRadar: %w", err)
	}
	defer conn.Close()

	sent := 0
	for _, r := range records {
		line := EncodeLEEF(r.ID.String(), leefFields(r), leefFieldOrder) + "\n"
		if _, err := conn.Write([]byte(line)); err != nil {
			return sent, fmt.Errorf("writing LEEF event: %w", err)
		}
		sent++
	}
	return sent, nil
}

func leefFields(r Record) map[string]string {
	return map[string]string{
		"tenantId":         r.TenantID.String(),
		"jobId":            r.JobID.String(),
		"devTime":          r.Timestamp.UTC().Format(time.RFC3339),
		"filePath":         r.FilePath,
		"riskScore":        strconv.Itoa(int(r.RiskScore)),
		"riskTier":         r.RiskTier,
		"exposureLevel":    r.ExposureLevel,
		"policyViolations": joinSemicolon(r.PolicyViolations),
	}
}

func joinSemicolon(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ";"
		}
		out += v
	}
	return out
}

func (s *QRadarSink) TestConnection(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("reaching QRadar: %w", err)
	}
	return conn.Close()
}
