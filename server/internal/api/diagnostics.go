package api

import "fmt"

// DiagnosticHint is one human-readable observation about relay traffic.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// Thresholds for the delivery-ratio hints, in percent of published messages
// that reached no subscriber because it lagged.
const (
	lagWarnPct     = 1.0
	lagCriticalPct = 10.0
)

// computeDiagnostics derives hints from metric series as returned by
// metrics.Values. Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(series map[string]float64, dropped map[string]float64) []DiagnosticHint {
	var critical, warning, info []DiagnosticHint

	published := series["messages_published_total"]
	if published == 0 {
		info = append(info, DiagnosticHint{
			Key:    "idle",
			Level:  "info",
			Title:  "No traffic yet",
			Detail: "No client has published a message since the relay started.",
		})
	}

	if lagged := dropped["lagged"]; lagged > 0 {
		pct := 100.0
		if published > 0 {
			pct = lagged / published * 100
		}
		h := DiagnosticHint{
			Key:   "lagging_clients",
			Title: "Slow clients dropped",
			Detail: fmt.Sprintf(
				"%.0f subscriptions were closed because the client fell more than the room buffer behind. "+
					"Raise rooms.buffer if clients are on slow links.", lagged),
			Value: &pct,
		}
		switch {
		case pct >= lagCriticalPct:
			h.Level = "critical"
			critical = append(critical, h)
		case pct >= lagWarnPct:
			h.Level = "warning"
			warning = append(warning, h)
		default:
			h.Level = "info"
			info = append(info, h)
		}
	}

	if bad := dropped["malformed"] + dropped["invalid"]; bad > 0 {
		warning = append(warning, DiagnosticHint{
			Key:   "rejected_messages",
			Level: "warning",
			Title: "Messages rejected",
			Detail: fmt.Sprintf(
				"%.0f deliveries were dropped because the payload was not valid JSON "+
					"or had a blank username or message.", bad),
			Value: &bad,
		})
	}

	if fails := series["upgrade_failures_total"]; fails > 0 {
		warning = append(warning, DiagnosticHint{
			Key:   "upgrade_failures",
			Level: "warning",
			Title: "WebSocket upgrades failing",
			Detail: fmt.Sprintf(
				"%.0f requests to /ws could not be upgraded. Check that proxies forward the "+
					"Upgrade header and that the Origin is in server.allowed_origins.", fails),
			Value: &fails,
		})
	}

	out := make([]DiagnosticHint, 0, len(critical)+len(warning)+len(info))
	out = append(out, critical...)
	out = append(out, warning...)
	out = append(out, info...)
	if len(out) == 0 {
		out = append(out, DiagnosticHint{
			Key:    "healthy",
			Level:  "ok",
			Title:  "Healthy",
			Detail: "Messages are flowing and no client has been dropped.",
		})
	}
	return out
}
