package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Webhook types accepted in server.alerts.webhooks.
const (
	webhookSlack = "slack"
	webhookTeams = "teams"
	webhookHTTP  = "http"
)

// payloads maps a webhook type to the body it is sent.
var payloads = map[string]func(*Alert) any{
	webhookSlack: slackPayload,
	webhookTeams: teamsPayload,
	webhookHTTP:  func(a *Alert) any { return map[string]any{"source": "entropyscan", "alert": a} },
}

// perFile reports whether the alert is about a single file rather than the
// whole target.
func (a *Alert) perFile() bool { return a.Field == fieldFileEntropy }

// subjectKind names what Subject holds.
func (a *Alert) subjectKind() string {
	if a.perFile() {
		return "file"
	}
	return "target"
}

// observation describes the measured value, e.g. "entropy 7.951" for a
// file or "mean 6.200" for a target.
func (a *Alert) observation() string {
	if a.perFile() {
		return fmt.Sprintf("entropy %.3f", a.Value)
	}
	return fmt.Sprintf("%s %.3f", a.Field, a.Value)
}

// summary is the one-line text logged and sent to chat webhooks.
func (a *Alert) summary() string {
	if a.State == StateResolved {
		return fmt.Sprintf("%s: %s %s no longer matches %q", a.RuleName, a.subjectKind(), a.Subject, a.Condition)
	}
	return fmt.Sprintf("%s: %s %s has %s (%s)", a.RuleName, a.subjectKind(), a.Subject, a.observation(), a.Condition)
}

func slackPayload(a *Alert) any {
	return map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity, a.State), a.Message),
	}
}

func teamsPayload(a *Alert) any {
	facts := []map[string]string{
		{"name": "Rule", "value": a.RuleName},
		{"name": "Condition", "value": a.Condition},
		{"name": a.subjectKind(), "value": a.Subject},
		{"name": "Value", "value": a.observation()},
		{"name": "State", "value": a.State},
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity, a.State),
		"summary":    a.Message,
		"title":      fmt.Sprintf("%s %s", severityLabel(a.Severity, a.State), a.RuleName),
		"sections":   []map[string]any{{"facts": facts}},
	}
}

// deliver posts a to every configured webhook that has a URL. Failures are
// logged per webhook.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		body, err := json.Marshal(build(a))
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "subject", a.Subject, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "subject", a.Subject, "state", a.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook answered %s", resp.Status)
	}
	return nil
}

func severityLabel(severity, state string) string {
	if state == StateResolved {
		return "[RESOLVED]"
	}
	switch severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(severity, state string) string {
	switch {
	case state == StateResolved:
		return "2EB67D"
	case severity == "critical":
		return "D7263D"
	case severity == "warning":
		return "F4A259"
	default:
		return "3E92CC"
	}
}
