package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamzawahab/contactsterm/internal/events"
	"github.com/hamzawahab/contactsterm/internal/textfmt"
)

const (
	minBar    = 10
	maxBar    = 30
	nameLimit = 32
)

// renderProgress folds an upload update into the per-file state and
// redraws the footer bar. Local byte counters and server percentages for
// the same file id share one bar; the first Done closes it.
func (u *UI) renderProgress(evt events.Event) {
	update := *evt.Progress
	if update.ID == "" {
		return
	}

	u.progressMu.Lock()
	if u.finished[update.ID] {
		u.progressMu.Unlock()
		return
	}
	ps := mergeProgress(u.progressMeta[update.ID], update)
	if ps.StartedAt.IsZero() {
		ps.StartedAt = time.Now()
	}
	if ps.Done {
		u.finished[ps.ID] = true
		delete(u.progressMeta, ps.ID)
	} else {
		u.progressMeta[ps.ID] = ps
	}
	u.progressMu.Unlock()

	line := u.progressLine(ps, time.Now())
	if ps.Done {
		u.closeBar(ps.ID, line)
		return
	}
	u.showBar(ps.ID, line)
}

// mergeProgress overlays update on prev. A server percentage is kept when
// a later local update only carries byte counters.
func mergeProgress(prev, update events.ProgressState) events.ProgressState {
	out := update
	if out.Label == "" {
		out.Label = prev.Label
	}
	if out.Path == "" {
		out.Path = prev.Path
	}
	if out.Peer == "" {
		out.Peer = prev.Peer
	}
	if out.MimeType == "" {
		out.MimeType = prev.MimeType
	}
	if out.Total == 0 {
		out.Total, out.Current = prev.Total, prev.Current
	}
	if out.Percent < prev.Percent {
		out.Percent = prev.Percent
	}
	if out.StartedAt.IsZero() {
		out.StartedAt = prev.StartedAt
	}
	return out
}

func (u *UI) showBar(id, line string) {
	u.progressMu.Lock()
	u.barID, u.barLine = id, line
	u.progressMu.Unlock()
	u.redrawFooter()
}

// closeBar moves the finished line into scroll-back. Another upload's bar,
// if any, stays in the footer.
func (u *UI) closeBar(id, line string) {
	u.progressMu.Lock()
	if u.barID == id {
		u.barID, u.barLine = "", ""
	}
	u.progressMu.Unlock()
	u.writeLine(line)
}

func (u *UI) progressLine(ps events.ProgressState, now time.Time) string {
	width := u.terminalWidth() - 2
	name := colorPrimary + textfmt.Middle(progressName(ps), nameLimit) + colorReset
	if mt := shortMime(ps.MimeType); mt != "" {
		name += " " + colorMuted + "[" + mt + "]" + colorReset
	}
	if ps.Peer != "" {
		name += " → " + u.label(ps.Peer)
	}

	if ps.Done {
		line := fmt.Sprintf("%s✓ Uploaded%s %s", colorSuccess, colorReset, name)
		if ps.Total > 0 {
			line += " · " + textfmt.Bytes(ps.Total)
		}
		if !ps.StartedAt.IsZero() {
			line += " in " + now.Sub(ps.StartedAt).Round(100*time.Millisecond).String()
		}
		return textfmt.TruncateANSI(line, width)
	}

	fraction := ps.Fraction()
	bar := progressBar(fraction, barWidth(width))
	metrics := fmt.Sprintf("%3.0f%% %s", fraction*100, progressSource(ps))
	summary := colorAccent + "⇡" + colorReset + " " + name
	room := width - textfmt.Width(bar) - textfmt.Width(metrics) - 4
	if room < 8 {
		room = 8
	}
	return textfmt.TruncateANSI(summary, room) + "  " + bar + "  " + metrics
}

// progressSource names the input driving the bar: the server's confirmed
// percentage, or the bytes written locally so far.
func progressSource(ps events.ProgressState) string {
	if ps.Percent > 0 {
		return colorMuted + "server" + colorReset
	}
	return colorMuted + "local " + textfmt.Bytes(ps.Current) + "/" + textfmt.Bytes(ps.Total) + colorReset
}

func progressName(ps events.ProgressState) string {
	if name := strings.TrimSpace(ps.Label); name != "" {
		return name
	}
	if ps.Path != "" {
		return filepath.Base(ps.Path)
	}
	return shortID(ps.ID)
}

func shortMime(mt string) string {
	base, _, _ := strings.Cut(mt, ";")
	return strings.TrimSpace(base)
}

func barWidth(total int) int {
	w := total / 5
	if w < minBar {
		return minBar
	}
	if w > maxBar {
		return maxBar
	}
	return w
}

func progressBar(fraction float64, width int) string {
	filled := int(math.Round(fraction * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return colorPrimary + strings.Repeat("━", filled) + colorMuted + strings.Repeat("─", width-filled) + colorReset
}
