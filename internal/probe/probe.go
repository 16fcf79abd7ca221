// Package probe validates pre-resolved manifest URLs for direct channels.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"

	"streamsync/internal/capture"
	"streamsync/internal/config"
	"streamsync/internal/logging"
)

// maxManifestBytes bounds how much of a manifest body is decoded.
const maxManifestBytes = 2 << 20

// ErrProbeFailed means the manifest could not be fetched or decoded.
var ErrProbeFailed = errors.New("manifest probe failed")

// Kind is the decoded playlist type.
type Kind string

const (
	KindMedia  Kind = "media"
	KindMaster Kind = "master"
)

// Variant is one rendition listed by a master playlist.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Resolution string
}

// Result describes a reachable manifest.
type Result struct {
	URL      string
	Kind     Kind
	Variants []Variant
}

// MaxBandwidth returns the highest advertised variant bandwidth.
func (r Result) MaxBandwidth() uint32 {
	var best uint32
	for _, v := range r.Variants {
		if v.Bandwidth > best {
			best = v.Bandwidth
		}
	}
	return best
}

// Prober fetches and decodes HLS manifests.
type Prober struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New builds a Prober. A nil client gets one with the given timeout.
func New(client *http.Client, timeout time.Duration, userAgent string, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Prober{client: client, userAgent: userAgent, logger: logging.NewComponentLogger(logger, "probe")}
}

// NewFromConfig uses the capture timeout and user agent.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Prober {
	return New(nil, time.Duration(cfg.Capture.ProbeTimeout)*time.Second, cfg.Capture.UserAgent, logger)
}

// Probe downloads rawURL and decodes it as an HLS playlist.
func (p *Prober) Probe(ctx context.Context, rawURL string) (Result, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: parse url: %w", ErrProbeFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %w", ErrProbeFailed, err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: HTTP %d", ErrProbeFailed, resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(io.LimitReader(resp.Body, maxManifestBytes)), false)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode: %w", ErrProbeFailed, err)
	}

	result := Result{URL: rawURL}
	switch listType {
	case m3u8.MEDIA:
		result.Kind = KindMedia
	case m3u8.MASTER:
		result.Kind = KindMaster
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return Result{}, fmt.Errorf("%w: unexpected master playlist type %T", ErrProbeFailed, playlist)
		}
		for _, variant := range master.Variants {
			if variant == nil {
				continue
			}
			ref, err := base.Parse(variant.URI)
			if err != nil {
				continue
			}
			result.Variants = append(result.Variants, Variant{
				URI:        ref.String(),
				Bandwidth:  variant.Bandwidth,
				Resolution: variant.Resolution,
			})
		}
	default:
		return Result{}, fmt.Errorf("%w: unknown playlist type", ErrProbeFailed)
	}
	return result, nil
}

// Discover satisfies the pipeline's source contract for direct channels. The
// configured URL is the only exchange; it is marked answered only when the
// probe succeeds.
func (p *Prober) Discover(ctx context.Context, ch config.Channel) ([]capture.Exchange, error) {
	logger := logging.WithContext(ctx, p.logger)
	result, err := p.Probe(ctx, ch.URL)
	if err != nil {
		return []capture.Exchange{{URL: ch.URL}}, fmt.Errorf("probe %s: %w", ch.Key(), err)
	}
	attrs := []logging.Attr{logging.String("kind", string(result.Kind))}
	if result.Kind == KindMaster {
		attrs = append(attrs,
			logging.Int("variants", len(result.Variants)),
			logging.Int64("max_bandwidth", int64(result.MaxBandwidth())),
		)
		for _, v := range result.Variants {
			logger.Debug("manifest variant", logging.String("uri", v.URI), logging.Int64("bandwidth", int64(v.Bandwidth)))
		}
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "direct manifest reachable", attrs...)
	return []capture.Exchange{{URL: ch.URL, HadResponse: true}}, nil
}
