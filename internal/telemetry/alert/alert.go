// Package alert delivers telemetry anomaly notifications to a Discord
// webhook channel, repurposing the teacher's bwmarrin/discordgo dependency
// (otherwise used for a full bot session in internal/effectors) as a
// one-shot webhook notifier. This is a supplemented feature: the Python
// source only ever produced a structured anomaly list, never pushed it
// anywhere.
package alert

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/voidmem/internal/telemetry"
)

// Notifier posts anomaly summaries to a single Discord webhook.
type Notifier struct {
	session   *discordgo.Session
	webhookID string
	token     string
}

// NewNotifier builds a Notifier against webhookID/token. No bot token or
// gateway connection is required: webhook execution only needs an
// unauthenticated session.
func NewNotifier(webhookID, token string) (*Notifier, error) {
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("alert: create session: %w", err)
	}
	return &Notifier{session: session, webhookID: webhookID, token: token}, nil
}

// NotifyAnomalies posts one message summarising the run's anomalies. It is
// a no-op (returns nil) when anomalies is empty.
func (n *Notifier) NotifyAnomalies(runLabel string, anomalies []telemetry.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Void Dynamics telemetry anomalies — %s**\n", runLabel)
	for _, a := range anomalies {
		fmt.Fprintf(&b, "- `%s` **%s** (%s): %s\n", strings.ToUpper(a.Severity), a.Metric, a.Sample, a.Message)
	}

	content := b.String()
	if len(content) > 2000 {
		content = content[:1997] + "..."
	}

	_, err := n.session.WebhookExecute(n.webhookID, n.token, false, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("alert: webhook execute: %w", err)
	}
	return nil
}
