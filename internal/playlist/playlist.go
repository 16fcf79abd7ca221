// Package playlist reads and writes extended M3U playlists.
//
// Entries keep their #EXTINF attributes in source order and carry any
// player option lines (#EXTVLCOPT, #KODIPROP, ...) that sit between the
// attribute line and the stream URL, so a parsed playlist re-encodes
// without losing information.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Header is the marker every extended M3U file starts with.
const Header = "#EXTM3U"

const extinfPrefix = "#EXTINF:"

// DefaultDuration marks a live stream of unknown length.
const DefaultDuration = "-1"

var attrRE = regexp.MustCompile(`([\w-]+)=(?:"([^"]*)"|([^\s,"]+))`)

var optionPrefixes = []string{"#EXTVLCOPT", "#KODIPROP", "#EXTGRP", "#EXTHTTP", "#EXTATTRFROMURL"}

// Attr is one key="value" pair on an #EXTINF line.
type Attr struct {
	Key   string
	Value string
}

// Entry is one playable stream: attribute line, option lines, URL.
type Entry struct {
	Duration string
	Attrs    []Attr
	Name     string
	Options  []string
	URL      string
}

// NewEntry builds an entry for a live stream tagged with group and tvg-name.
func NewEntry(group, tvgName, displayName, url string) Entry {
	return Entry{
		Duration: DefaultDuration,
		Attrs: []Attr{
			{Key: "group-title", Value: group},
			{Key: "tvg-name", Value: tvgName},
		},
		Name: displayName,
		URL:  url,
	}
}

// Attr returns the value of key, matched case-insensitively.
func (e Entry) Attr(key string) (string, bool) {
	for _, attr := range e.Attrs {
		if strings.EqualFold(attr.Key, key) {
			return attr.Value, true
		}
	}
	return "", false
}

// SetAttr replaces key in place or appends it.
func (e *Entry) SetAttr(key, value string) {
	for i, attr := range e.Attrs {
		if strings.EqualFold(attr.Key, key) {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Key: key, Value: value})
}

// GroupTitle returns the group-title attribute, or "".
func (e Entry) GroupTitle() string {
	value, _ := e.Attr("group-title")
	return value
}

// ExtinfLine renders the #EXTINF attribute line.
func (e Entry) ExtinfLine() string {
	var b strings.Builder
	b.WriteString(extinfPrefix)
	duration := e.Duration
	if duration == "" {
		duration = DefaultDuration
	}
	b.WriteString(duration)
	for _, attr := range e.Attrs {
		if attr.Key == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(strings.ReplaceAll(attr.Value, `"`, "'"))
		b.WriteByte('"')
	}
	b.WriteByte(',')
	b.WriteString(e.Name)
	return b.String()
}

// Lines returns the attribute line, option lines and URL in file order.
func (e Entry) Lines() []string {
	lines := make([]string, 0, 2+len(e.Options))
	lines = append(lines, e.ExtinfLine())
	lines = append(lines, e.Options...)
	lines = append(lines, e.URL)
	return lines
}

// IsExtinf reports whether line is an #EXTINF attribute line.
func IsExtinf(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), extinfPrefix)
}

// IsOptionLine reports whether line is a per-entry player option that belongs
// to the surrounding #EXTINF/URL pair.
func IsOptionLine(line string) bool {
	line = strings.TrimSpace(line)
	for _, prefix := range optionPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// IsHeader reports whether line is the #EXTM3U marker, with or without header attributes.
func IsHeader(line string) bool {
	line = strings.TrimSpace(line)
	return line == Header || strings.HasPrefix(line, Header+" ")
}

// ParseExtinf decodes an #EXTINF line. The display name is everything after the
// first comma outside a quoted attribute value.
func ParseExtinf(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, extinfPrefix) {
		return Entry{}, false
	}
	body := line[len(extinfPrefix):]

	head, name := body, ""
	inQuote := false
	for i, r := range body {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if r == ',' && !inQuote {
			head, name = body[:i], body[i+1:]
			break
		}
	}

	entry := Entry{Name: strings.TrimSpace(name)}
	head = strings.TrimSpace(head)
	duration := head
	if idx := strings.IndexAny(head, " \t"); idx >= 0 {
		duration = head[:idx]
	}
	if strings.Contains(duration, "=") {
		duration = ""
	}
	entry.Duration = duration
	if entry.Duration == "" {
		entry.Duration = DefaultDuration
	}
	for _, m := range attrRE.FindAllStringSubmatch(head, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		entry.Attrs = append(entry.Attrs, Attr{Key: m[1], Value: value})
	}
	return entry, true
}

// Playlist is a parsed M3U document.
type Playlist struct {
	Entries []Entry
	// Comments holds free-standing comment lines (such as update timestamps)
	// in the order they were read. Encode writes them after the entries.
	Comments []string
	// Orphans counts URL lines that had no preceding #EXTINF.
	Orphans int
}

// Parse reads an M3U document. A missing header is tolerated; a dangling
// #EXTINF without a URL is dropped.
func Parse(r io.Reader) (*Playlist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := &Playlist{}
	var pending *Entry
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		switch {
		case line == "":
			continue
		case IsHeader(line):
			continue
		case IsExtinf(line):
			entry, _ := ParseExtinf(line)
			pending = &entry
		case IsOptionLine(line) && pending != nil:
			pending.Options = append(pending.Options, line)
		case strings.HasPrefix(line, "#"):
			out.Comments = append(out.Comments, line)
		default:
			if pending == nil {
				out.Orphans++
				continue
			}
			pending.URL = line
			out.Entries = append(out.Entries, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	return out, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) (*Playlist, error) {
	return Parse(strings.NewReader(s))
}

// Encode writes the header, every entry and the trailing comments.
func Encode(w io.Writer, p *Playlist) error {
	bw := bufio.NewWriter(w)
	write := func(line string) {
		_, _ = bw.WriteString(line)
		_ = bw.WriteByte('\n')
	}
	write(Header)
	if p != nil {
		for _, entry := range p.Entries {
			for _, line := range entry.Lines() {
				write(line)
			}
		}
		for _, comment := range p.Comments {
			write(comment)
		}
	}
	return bw.Flush()
}

// String renders p the same way Encode does.
func (p *Playlist) String() string {
	var b strings.Builder
	_ = Encode(&b, p)
	return b.String()
}
