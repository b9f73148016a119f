// Package textfmt holds the small text helpers shared by the command
// handler and the console: sizes, relative times and ANSI-aware widths.
package textfmt

import (
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"
)

// Reset is the SGR sequence appended after a truncated styled string.
const Reset = "\033[0m"

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// Bytes renders n in binary units ("1.5 KiB"). Negative sizes render as
// zero.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Ago renders at relative to now, or "recently" for the zero time.
func Ago(at time.Time) string {
	if at.IsZero() {
		return "recently"
	}
	return humanize.Time(at)
}

// Middle shortens s to limit runes by replacing its middle with "…".
func Middle(s string, limit int) string {
	r := []rune(s)
	switch {
	case limit <= 0:
		return ""
	case len(r) <= limit:
		return s
	case limit == 1:
		return "…"
	}
	keep := limit - 1
	head := (keep + 1) / 2
	return string(r[:head]) + "…" + string(r[len(r)-(keep-head):])
}

// StripANSI removes CSI escape sequences.
func StripANSI(s string) string {
	return ansiSeq.ReplaceAllString(s, "")
}

// Width is the number of terminal cells s occupies once escapes and line
// breaks are ignored.
func Width(s string) int {
	clean := strings.NewReplacer("\r", "", "\n", "").Replace(StripANSI(s))
	return runewidth.StringWidth(clean)
}

// TruncateANSI cuts s to at most limit visible cells. Escape sequences
// before the cut are kept and a styled result always ends in Reset.
func TruncateANSI(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	styled := false
	fits := func(text string) bool {
		for _, r := range text {
			if r == '\r' || r == '\n' {
				b.WriteRune(r)
				continue
			}
			w := runewidth.RuneWidth(r)
			if w == 0 {
				w = 1
			}
			if used+w > limit {
				return false
			}
			used += w
			b.WriteRune(r)
		}
		return true
	}

	rest := s
	for rest != "" {
		loc := ansiSeq.FindStringIndex(rest)
		if loc == nil {
			fits(rest)
			break
		}
		if !fits(rest[:loc[0]]) {
			break
		}
		b.WriteString(rest[loc[0]:loc[1]])
		styled = true
		rest = rest[loc[1]:]
	}

	out := b.String()
	if styled && !strings.HasSuffix(out, Reset) {
		out += Reset
	}
	return out
}
