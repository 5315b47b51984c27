package command

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/tally/internal/counter"
)

// Render turns a Result into chat-ready markdown. Users are written as
// <@id> mentions so the chat client resolves display names.
func Render(r Result) string {
	switch r.Kind {
	case KindLeaderboard:
		if r.Leaderboard != nil {
			return renderLeaderboard(r.Leaderboard)
		}
	case KindStats:
		if r.Stats != nil {
			return fmt.Sprintf("📊 Stats for <@%s>\nWeekly: %d msgs\nAll-Time: %d msgs",
				r.Stats.UserID, r.Stats.Weekly, r.Stats.AllTime)
		}
	case KindAck:
		if r.Ack != nil {
			return "✅ " + r.Ack.Message
		}
	case KindError:
		if r.Error != nil {
			return "❌ " + r.Error.Message
		}
	}
	return "❌ Something went wrong."
}

func renderLeaderboard(lb *Leaderboard) string {
	var b strings.Builder

	if lb.Scope == counter.ScopeAllTime {
		b.WriteString("🏆 **" + lb.Title + "**\n\n")
	} else {
		if len(lb.Rows) == 0 {
			return fmt.Sprintf("❌ No data for %s", lb.Period)
		}
		b.WriteString("📅 **" + lb.Title + "**")
		if lb.FromHistory {
			b.WriteString(" (archived)")
		}
		b.WriteString("\n\n")
	}

	if len(lb.Rows) == 0 {
		b.WriteString("No messages yet.")
		return b.String()
	}

	for i, row := range lb.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "**%d.** <@%s> - %d", row.Rank, row.UserID, row.Count)
	}
	return b.String()
}
