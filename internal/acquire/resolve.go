package acquire

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"reembed/internal/logging"
)

// Resolution is the outcome of following a link's redirects.
type Resolution struct {
	URL         string
	Redirected  bool
	Unreachable bool
}

// Resolver follows redirects so short links dispatch on their final URL.
type Resolver struct {
	Client    *http.Client
	UserAgent string
	Logger    *slog.Logger
}

// NewResolver returns a Resolver whose requests time out after timeout.
func NewResolver(timeout time.Duration, userAgent string, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		Logger:    logging.NewComponentLogger(logger, "resolve"),
	}
}

// Resolve issues a HEAD, retrying with GET when the server rejects HEAD. Any
// failure falls back to rawURL; Unreachable separates transport failures from
// links that simply do not redirect.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Resolution {
	logger := logging.WithContext(ctx, r.Logger)
	final, err := r.follow(ctx, http.MethodHead, rawURL)
	if err == nil && final == "" {
		final, err = r.follow(ctx, http.MethodGet, rawURL)
	}
	if err == nil && final == "" {
		final = rawURL
	}
	if err != nil {
		logging.WarnWithContext(logger, "link unreachable; using original URL", "resolve_unreachable",
			logging.String("url", rawURL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the extractor gets the unresolved link"),
			logging.String(logging.FieldImpact, "slideshow posts behind short links may be missed"),
		)
		return Resolution{URL: rawURL, Unreachable: true}
	}
	if final == rawURL {
		logger.Debug("link has no redirect", logging.String("url", rawURL))
		return Resolution{URL: rawURL}
	}
	logger.Debug("link redirected", logging.String("from", rawURL), logging.String("to", final))
	return Resolution{URL: final, Redirected: true}
}

// follow returns "" when the server answers method with 405 or 501.
func (r *Resolver) follow(ctx context.Context, method, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", err
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return "", nil
	}
	return resp.Request.URL.String(), nil
}
