package heartbeat

import (
	"fmt"
	"strings"
	"time"
)

// FormatPrompt builds the enqueued text for a due heartbeat workflow, per
// spec §4.5's template. blockText is the heartbeat block's free text and
// workflowText is the contents of cwd/workflows/<name>.md; they are
// concatenated with a blank line between them to form the context.
func FormatPrompt(workflow string, blockText, workflowText string, now time.Time) string {
	context := joinContext(blockText, workflowText)
	name := workflow
	if name == "" {
		name = "(none)"
	}
	return fmt.Sprintf(
		"❤ Heartbeat workflow trigger. The current time and date is: %s.\nWorkflow: %s. Follow these instructions now if time and date is relevant:\n\n%s\n\n❤",
		now.Format(time.RFC3339), name, context,
	)
}

func joinContext(blockText, workflowText string) string {
	blockText = strings.TrimSpace(blockText)
	workflowText = strings.TrimSpace(workflowText)
	switch {
	case blockText == "":
		return workflowText
	case workflowText == "":
		return blockText
	default:
		return blockText + "\n\n" + workflowText
	}
}
