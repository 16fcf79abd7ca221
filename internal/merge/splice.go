package merge

import (
	"strings"
	"time"

	"streamsync/internal/playlist"
)

// Rule is the line that frames the managed section title.
const Rule = "# ================================"

const (
	stampPrefix       = "# 更新時間："
	legacyStampPrefix = "# 合併時間："
	channelStamp      = "# 更新："
	timestampLayout   = "2006-01-02 15:04:05"
)

// Stripped is a remote master playlist with the managed section removed.
type Stripped struct {
	// Lines is the foreign content in original order.
	Lines []string
	// Removed counts managed entries that were deleted.
	Removed int
	// Foreign counts entries that were kept.
	Foreign int
}

func isRule(line string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "#")
	if !ok {
		return false
	}
	rest = strings.TrimSpace(rest)
	return len(rest) >= 3 && strings.Trim(rest, "=") == ""
}

func isStamp(line string) bool {
	return strings.HasPrefix(line, stampPrefix) || strings.HasPrefix(line, legacyStampPrefix)
}

func splitLines(content string) []string {
	content = strings.TrimPrefix(content, "\uFEFF")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

// managedGroup reports whether any ';' separated group-title is managed.
func managedGroup(entry playlist.Entry, managed map[string]struct{}) bool {
	for _, part := range strings.Split(entry.GroupTitle(), ";") {
		if _, ok := managed[strings.TrimSpace(part)]; ok {
			return true
		}
	}
	return false
}

// Strip removes the previously managed section from content. An entry is
// removed together with its option lines and URL when its group-title is in
// managed or it sits inside the titled block. Anything that does not form a
// complete attribute/URL pair is passed through unchanged.
func Strip(content string, managed []string, title string) Stripped {
	set := make(map[string]struct{}, len(managed))
	for _, g := range managed {
		set[g] = struct{}{}
	}
	titleLine := "# " + strings.TrimSpace(title)

	lines := splitLines(content)
	var out Stripped
	inBlock := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == titleLine:
			if n := len(out.Lines); n > 0 && isRule(out.Lines[n-1]) {
				out.Lines = out.Lines[:n-1]
			}
			if i+1 < len(lines) && isRule(lines[i+1]) {
				i++
			}
			inBlock = true
			continue
		case isStamp(trimmed):
			inBlock = false
			continue
		case playlist.IsExtinf(trimmed):
			j := i + 1
			for j < len(lines) && playlist.IsOptionLine(lines[j]) {
				j++
			}
			next := ""
			if j < len(lines) {
				next = strings.TrimSpace(lines[j])
			}
			if next == "" || strings.HasPrefix(next, "#") {
				// Dangling attribute line: keep it as is.
				out.Lines = append(out.Lines, line)
				continue
			}
			entry, _ := playlist.ParseExtinf(trimmed)
			if inBlock || managedGroup(entry, set) {
				out.Removed++
			} else {
				out.Lines = append(out.Lines, lines[i:j+1]...)
				out.Foreign++
			}
			i = j
			continue
		}

		if inBlock {
			switch {
			case trimmed == "", playlist.IsHeader(trimmed), strings.HasPrefix(trimmed, channelStamp):
				continue
			case !strings.HasPrefix(trimmed, "#"):
				// A bare URL ends the block; it is not ours to delete.
				inBlock = false
			}
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

// Render appends the managed section to the foreign lines.
func Render(foreign []string, entries []playlist.Entry, title string, now time.Time) string {
	end := len(foreign)
	for end > 0 && strings.TrimSpace(foreign[end-1]) == "" {
		end--
	}
	body := foreign[:end]

	var b strings.Builder
	first := ""
	for _, line := range body {
		if strings.TrimSpace(line) != "" {
			first = strings.TrimSpace(line)
			break
		}
	}
	if !playlist.IsHeader(first) {
		b.WriteString(playlist.Header)
		b.WriteByte('\n')
	}
	for _, line := range body {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(Rule + "\n")
	b.WriteString("# " + strings.TrimSpace(title) + "\n")
	b.WriteString(Rule + "\n")
	for _, entry := range entries {
		for _, line := range entry.Lines() {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(stampPrefix + now.Format(timestampLayout) + "\n")
	return b.String()
}

// Splice strips content and renders entries in one step.
func Splice(content string, entries []playlist.Entry, managed []string, title string, now time.Time) (string, Stripped) {
	stripped := Strip(content, managed, title)
	return Render(stripped.Lines, entries, title, now), stripped
}
