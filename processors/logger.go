package processors

import "github.com/creastat/infra/telemetry"

// withDefaultLogger returns l, or an info-level logger when l is unset
func withDefaultLogger(l telemetry.Logger) telemetry.Logger {
	if any(l) == nil {
		return telemetry.New(telemetry.Config{Level: "info"})
	}
	return l
}
