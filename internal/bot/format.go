package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"media_bot/internal/browse"
	"media_bot/internal/filter"
	"media_bot/internal/model"
	"media_bot/internal/throughput"
)

const browseTimeLayout = "01-02 15:04"

// FormatTaskStatus renders the status message of a task node.
func FormatTaskStatus(node *model.TaskNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task #%d: %s %d", node.ID, node.Kind, node.ChatID)
	if node.Kind == model.TaskForward {
		fmt.Fprintf(&b, " → %d", node.DestinationID)
	}
	if node.Limit > 0 {
		fmt.Fprintf(&b, " (limit %d)", node.Limit)
	}
	b.WriteString("\n")
	b.WriteString(node.Status())
	if failed := node.FailedIDs(); len(failed) > 0 && !node.IsRunning() {
		fmt.Fprintf(&b, "\nfailed: %s", joinIDs(failed, 20))
		for _, id := range failed[:min(len(failed), 5)] {
			if reason := node.FailureReason(id); reason != "" {
				fmt.Fprintf(&b, "\n%d: %s", id, reason)
			}
		}
	}
	return b.String()
}

// FormatStatus renders the running tasks and the global speed.
func FormatStatus(nodes []*model.TaskNode, speed throughput.GlobalSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Download %s/s, upload %s/s\n",
		humanize.IBytes(uint64(max(speed.DownloadSpeed, 0))),
		humanize.IBytes(uint64(max(speed.UploadSpeed, 0))))
	if len(nodes) == 0 {
		b.WriteString("\nNo running tasks.")
		return b.String()
	}
	for _, n := range nodes {
		fmt.Fprintf(&b, "\n#%d %s %d, started %s\n   %s",
			n.ID, n.Kind, n.ChatID, humanize.Time(n.CreatedAt), n.Status())
	}
	return b.String()
}

// FormatFilterCheck describes a valid filter expression.
func FormatFilterCheck(expr *filter.Expr) string {
	var b strings.Builder
	b.WriteString("Filter OK.\n")
	fmt.Fprintf(&b, "Parsed: %s", expr.String())
	if names := expr.Names(); len(names) > 0 {
		fmt.Fprintf(&b, "\nUses: %s", strings.Join(names, ", "))
	}
	return b.String()
}

// FormatBrowseHeader is the text above a browse keyboard.
func FormatBrowseHeader(s browse.Session, batch, batches int) string {
	return fmt.Sprintf("Chat %s, last %d min, batch %d/%d.\nTap items to select, then Download.",
		s.Target, s.Minutes, batch, batches)
}

// FormatBrowseItem is the button label of a browse item.
func FormatBrowseItem(it browse.Item, loc *time.Location) string {
	var mark string
	switch it.State {
	case browse.Selected:
		mark = "[x]"
	case browse.Downloaded:
		mark = "[done]"
	default:
		mark = "[ ]"
	}
	label := fmt.Sprintf("%s %d %s %s", mark, it.ID, it.Kind, it.Date.In(loc).Format(browseTimeLayout))
	if it.Sender != "" {
		label += " " + it.Sender
	}
	if it.FileName != "" {
		label += " " + it.FileName
	}
	return label
}

func joinIDs(ids []int64, limit int) string {
	parts := make([]string, 0, min(len(ids), limit))
	for i, id := range ids {
		if i == limit {
			parts = append(parts, fmt.Sprintf("and %d more", len(ids)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(id))
	}
	return strings.Join(parts, ", ")
}
