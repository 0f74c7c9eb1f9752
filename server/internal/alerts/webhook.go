package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// severityStyle is how each target renders a severity.
type severityStyle struct {
	tag   string // Slack prefix
	color string // Teams theme colour
}

var severities = map[string]severityStyle{
	"critical": {tag: ":red_circle: CRITICAL", color: "D93F3F"},
	"warning":  {tag: ":large_orange_circle: WARNING", color: "F2A93B"},
	"info":     {tag: ":large_blue_circle: INFO", color: "3B8FF2"},
}

func styleOf(severity string) severityStyle {
	if s, ok := severities[severity]; ok {
		return s
	}
	return severities["info"]
}

// payloadFuncs build the request body for each webhook type.
var payloadFuncs = map[string]func(a *Alert) interface{}{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// headline is the one-line summary shared by the chat targets.
func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("roomrelay: %s resolved (value %.2f)", a.RuleName, a.Value)
	}
	return fmt.Sprintf("roomrelay: %s", a.Message)
}

func slackPayload(a *Alert) interface{} {
	return map[string]string{
		"text": fmt.Sprintf("*%s* %s", styleOf(a.Severity).tag, headline(a)),
	}
}

func teamsPayload(a *Alert) interface{} {
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": styleOf(a.Severity).color,
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("roomrelay %s: %s", a.State, a.RuleName),
		"text":       headline(a),
	}
}

func httpPayload(a *Alert) interface{} {
	return map[string]interface{}{"service": "roomrelay", "alert": a}
}

// deliver posts a to every webhook with a resolvable URL. Failures are
// logged and not retried.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloadFuncs[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err := e.post(url, build(a)); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func (e *Engine) post(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook answered %s", resp.Status)
	}
	return nil
}
