package export

import "github.com/chillbot-io/openlabels/internal/telemetry"

func recordMetric(sink string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	telemetry.SIEMExportedTotal.WithLabelValues(sink, outcome).Inc()
}
