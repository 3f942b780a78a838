// Package notify sends Slack notifications for production lifecycle
// events: a stage failure, an export confirmation, and an invitation sent
// to a collaborator. It only needs a PostMessageContext surface — there is
// no inbound chat-ops interactivity (slash commands, button actions) here,
// since transport-layer routing and the asset/chat-ops collaborators live
// outside this core.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts production-event messages to a configured Slack channel.
// When botToken is empty it is a no-op that only logs, a "disabled" mode
// for environments without Slack configured.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If botToken is empty the Notifier
// degrades to logging only.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the Notifier has a live Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// ProductionFailed notifies that a production was failed by the Workflow
// Engine.
func (n *Notifier) ProductionFailed(ctx context.Context, productionID, stage, kind, message string) error {
	return n.post(ctx, "production_failed", productionFailedBlocks(productionID, stage, kind, message),
		fmt.Sprintf("production %s failed at %s: %s", productionID, stage, message))
}

// ExportConfirmed notifies that a render was confirmed and its quota
// debited.
func (n *Notifier) ExportConfirmed(ctx context.Context, productionID string, cost float64) error {
	return n.post(ctx, "export_confirmed", exportConfirmedBlocks(productionID, cost),
		fmt.Sprintf("export confirmed for production %s, cost %.3f", productionID, cost))
}

// InvitationSent notifies an inviter that an invitation was created (spec
// §4.5's invitation lifecycle).
func (n *Notifier) InvitationSent(ctx context.Context, productionID, inviteeEmail, role string) error {
	return n.post(ctx, "invitation_sent", invitationSentBlocks(productionID, inviteeEmail, role),
		fmt.Sprintf("invited %s as %s on production %s", inviteeEmail, role, productionID))
}

func (n *Notifier) post(ctx context.Context, kind string, blocks []goslack.Block, fallback string) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping notification", "kind", kind, "text", fallback)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fallback, false),
	)
	if err != nil {
		return fmt.Errorf("posting %s notification to slack: %w", kind, err)
	}
	n.logger.Info("posted notification to slack", "kind", kind)
	return nil
}
