package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// Notifier posts a run summary to Slack. A Notifier with an empty token is
// a no-op rather than an error, the same "skip, don't fail" treatment the
// teacher gives an absent optional collaborator.
type Notifier struct {
	client  *slack.Client
	channel string
}

// NewNotifier returns a Notifier for channel, or a no-op Notifier if token
// is empty.
func NewNotifier(token, channel string) *Notifier {
	if token == "" {
		return &Notifier{}
	}
	return &Notifier{client: slack.New(token), channel: channel}
}

// NotifyRunComplete posts a one-line-per-platform summary of report to the
// configured channel. No-op if the Notifier has no client.
func (n *Notifier) NotifyRunComplete(ctx context.Context, report Report) error {
	if n.client == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*adflow run finished*: %d/%d platforms completed (%.0f%% success), %d rows processed in %.1fs\n",
		report.Summary.Completed, report.Summary.TotalPlatforms, report.Summary.SuccessRate*100,
		report.Summary.TotalRowsProcessed, report.Summary.TotalDurationSeconds)

	for _, p := range report.Platforms {
		line := fmt.Sprintf("- `%s`: %s (%d rows, %d tables, %d retries)", p.PlatformName, p.Status, p.RowsProcessed, p.TablesProcessed, p.RetryCount)
		if p.ErrorMessage != "" {
			line += fmt.Sprintf(" - %s", firstLine(p.ErrorMessage))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(b.String(), false))
	if err != nil {
		return fmt.Errorf("orchestrator: post slack summary: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
