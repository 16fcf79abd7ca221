// Package selector filters and ranks manifest URLs observed during capture.
//
// Everything here is pure: the same exchanges and options always produce the
// same ordered candidate list. Position 0 is the primary stream; the rest are
// kept as backups.
package selector

import (
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"streamsync/internal/capture"
	"streamsync/internal/config"
)

// shortAdKeyword is the length from which ad keywords match inside longer
// tokens.
const shortAdKeyword = 3

// ErrNoCandidates means no observed request survived filtering.
var ErrNoCandidates = errors.New("no manifest candidates")

// Options controls filtering and ranking.
type Options struct {
	ManifestSuffixes []string
	AdKeywords       []string
	BitrateKeywords  []string
	QualityKeywords  []string
	// MaxCandidates caps the result. Zero keeps every candidate.
	MaxCandidates int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Selector)
}

// OptionsFromConfig copies the [selector] section.
func OptionsFromConfig(cfg config.Selector) Options {
	return Options{
		ManifestSuffixes: append([]string(nil), cfg.ManifestSuffixes...),
		AdKeywords:       append([]string(nil), cfg.AdKeywords...),
		BitrateKeywords:  append([]string(nil), cfg.BitrateKeywords...),
		QualityKeywords:  append([]string(nil), cfg.QualityKeywords...),
		MaxCandidates:    cfg.MaxCandidates,
	}
}

// Candidate is a ranked manifest URL.
type Candidate struct {
	URL         string `json:"url"`
	Bitrate     int64  `json:"bitrate,omitempty"`
	HasBitrate  bool   `json:"has_bitrate"`
	HighQuality bool   `json:"high_quality"`
}

// Selector holds compiled options.
type Selector struct {
	opts      Options
	bitrateRE *regexp.Regexp
}

// New compiles opts.
func New(opts Options) *Selector {
	s := &Selector{opts: opts}
	keywords := make([]string, 0, len(opts.BitrateKeywords))
	for _, kw := range opts.BitrateKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, regexp.QuoteMeta(strings.ToLower(kw)))
		}
	}
	if len(keywords) > 0 {
		s.bitrateRE = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:` + strings.Join(keywords, "|") + `)_(\d+)=`)
	}
	return s
}

// Select filters exchanges and returns candidates best first.
func (s *Selector) Select(exchanges []capture.Exchange) ([]Candidate, error) {
	seen := make(map[string]struct{}, len(exchanges))
	candidates := make([]Candidate, 0, len(exchanges))
	for _, ex := range exchanges {
		if !ex.HadResponse || !s.IsManifest(ex.URL) || s.IsAd(ex.URL) {
			continue
		}
		if _, ok := seen[ex.URL]; ok {
			continue
		}
		seen[ex.URL] = struct{}{}
		candidates = append(candidates, s.candidate(ex.URL))
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	sortCandidates(candidates)
	if s.opts.MaxCandidates > 0 && len(candidates) > s.opts.MaxCandidates {
		candidates = candidates[:s.opts.MaxCandidates]
	}
	return candidates, nil
}

// Rank treats every URL as answered and runs Select.
func (s *Selector) Rank(urls []string) ([]Candidate, error) {
	exchanges := make([]capture.Exchange, 0, len(urls))
	for _, u := range urls {
		exchanges = append(exchanges, capture.Exchange{URL: strings.TrimSpace(u), HadResponse: true})
	}
	return s.Select(exchanges)
}

// IsManifest reports whether raw references one of the manifest suffixes.
func (s *Selector) IsManifest(raw string) bool {
	lower := strings.ToLower(raw)
	for _, suffix := range s.opts.ManifestSuffixes {
		if suffix != "" && strings.Contains(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// IsAd reports whether raw matches an advertisement keyword in its host,
// path or query. Alphanumeric keywords shorter than shortAdKeyword runes must
// equal a whole token, so "ad" matches "/ad_break/" but not "/download/".
// Every other keyword matches as a substring: "ads" catches "pubads" and
// "advert" catches "advertisement".
func (s *Selector) IsAd(raw string) bool {
	lower := strings.ToLower(raw)
	haystack := lower
	if parsed, err := url.Parse(lower); err == nil {
		haystack = parsed.Host + parsed.EscapedPath()
		if parsed.RawQuery != "" {
			haystack += "?" + parsed.RawQuery
		}
	}
	tokens := tokenize(haystack)
	for _, kw := range s.opts.AdKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if isAlnum(kw) && len([]rune(kw)) < shortAdKeyword {
			if _, ok := tokens[kw]; ok {
				return true
			}
			continue
		}
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// ParseBitrate extracts the largest <keyword>_<digits>= token from raw.
func (s *Selector) ParseBitrate(raw string) (int64, bool) {
	if s.bitrateRE == nil {
		return 0, false
	}
	var best int64
	found := false
	for _, m := range s.bitrateRE.FindAllStringSubmatch(raw, -1) {
		value, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if !found || value > best {
			best = value
			found = true
		}
	}
	return best, found
}

func (s *Selector) candidate(raw string) Candidate {
	c := Candidate{URL: raw}
	c.Bitrate, c.HasBitrate = s.ParseBitrate(raw)
	lower := strings.ToLower(raw)
	for _, kw := range s.opts.QualityKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			c.HighQuality = true
			break
		}
	}
	return c
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasBitrate != b.HasBitrate {
			return a.HasBitrate
		}
		if a.Bitrate != b.Bitrate {
			return a.Bitrate > b.Bitrate
		}
		if a.HighQuality != b.HighQuality {
			return a.HighQuality
		}
		if len(a.URL) != len(b.URL) {
			return len(a.URL) > len(b.URL)
		}
		return a.URL < b.URL
	})
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return !isAlnumRune(r) }) {
		tokens[field] = struct{}{}
	}
	return tokens
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !isAlnumRune(r) {
			return false
		}
	}
	return true
}

func isAlnumRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
