package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

// SyslogCEFConfig binds one syslog listener receiving CEF events.
type SyslogCEFConfig struct {
	Host   string
	Port   int
	UseTLS bool
	Proto  string // "tcp" or "udp"; defaults to "udp", the common syslog transport
}

var cefFieldOrder = []string{
	"tenantId", "jobId", "filePath", "riskTier", "exposureLevel", "policyViolations",
}

// SyslogCEFSink implements the CEF-over-syslog wire format.
type SyslogCEFSink struct {
	cfg SyslogCEFConfig
}

// NewSyslogCEFSink builds a SyslogCEFSink bound to cfg.
func NewSyslogCEFSink(cfg SyslogCEFConfig) *SyslogCEFSink {
	if cfg.Proto == "" {
		cfg.Proto = "udp"
	}
	return &SyslogCEFSink{cfg: cfg}
}

func (s *SyslogCEFSink) Name() string { return "syslog_cef" }

func (s *SyslogCEFSink) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	d := net.Dialer{Timeout: 30 * time.Second}
	if s.cfg.UseTLS {
		return tls.DialWithDialer(&d, s.cfg.Proto, addr, &tls.Config{ServerName: s.cfg.Host})
	}
	return d.DialContext(ctx, s.cfg.Proto, addr)
}

// riskSeverity maps a risk tier to the 0-10 CEF severity scale.
func riskSeverity(tier string) int {
	switch tier {
	case "CRITICAL":
		return 10
	case "HIGH":
		return 8
	case "MEDIUM":
		return 5
	case "LOW":
		return 2
	default:
		return 0
	}
}

func (s *SyslogCEFSink) ExportBatch(ctx context.Context, records []Record) (int, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return 0, fmt.Errorf("dialing syslog-CEF receiver: %w", err)
	}
	defer conn.Close()

	sent := 0
	for _, r := range records {
		ext := map[string]string{
			"tenantId":         r.TenantID.String(),
			"jobId":            r.JobID.String(),
			"filePath":         r.FilePath,
			"riskTier":         r.RiskTier,
			"exposureLevel":    r.ExposureLevel,
			"policyViolations": joinSemicolon(r.PolicyViolations),
		}
		line := EncodeCEF("OpenLabels", "Scanner", "2.0", "sensitive-data-finding", "Sensitive data scan finding", riskSeverity(r.RiskTier), ext, cefFieldOrder) + "\n"
		if _, err := conn.Write([]byte(line)); err != nil {
			return sent, fmt.Errorf("writing CEF event: %w", err)
		}
		sent++
	}
	return sent, nil
}

func (s *SyslogCEFSink) TestConnection(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("reaching syslog-CEF receiver: %w", err)
	}
	return conn.Close()
}
