package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// productionFailedBlocks builds Block Kit blocks for a production-failure
// notification: a header plus a section naming the failed stage's id,
// kind, and message.
func productionFailedBlocks(productionID, stage, kind, message string) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "🔴 Production failed", true, false),
	)

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Production:* %s", productionID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Stage:* %s", stage), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Kind:* %s", kind), false, false),
	}

	return []goslack.Block{
		header,
		goslack.NewSectionBlock(nil, fields, nil),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncate(message, 500), false, false),
			nil, nil,
		),
	}
}

// exportConfirmedBlocks builds blocks for a confirmed render notification.
func exportConfirmedBlocks(productionID string, cost float64) []goslack.Block {
	text := fmt.Sprintf("✅ Render confirmed for production *%s* — cost %.3f", productionID, cost)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// invitationSentBlocks builds blocks for a sent-invitation notification.
func invitationSentBlocks(productionID, inviteeEmail, role string) []goslack.Block {
	text := fmt.Sprintf("📨 Invited *%s* as *%s* on production *%s*", inviteeEmail, role, productionID)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
