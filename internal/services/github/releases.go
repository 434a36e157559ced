// Package github reads release feeds to discover the newest published build
// of an external tool.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v69/github"

	"reembed/internal/services"
)

// ErrNoRelease reports a feed with no stable release carrying the asset.
var ErrNoRelease = errors.New("no stable release with matching asset")

const defaultUserAgent = "reembed"

// Release is one downloadable build of a tool.
type Release struct {
	Tag         string
	DownloadURL string
	Size        int64
}

// Option customizes a Client.
type Option func(*Client) error

// WithHTTPClient replaces the HTTP client used for feed requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

// WithBaseURL points the client at an alternative API root.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.baseURL = parsed
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with feed requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// Client queries GitHub releases.
type Client struct {
	gh        *gogithub.Client
	http      *http.Client
	baseURL   *url.URL
	userAgent string
}

// NewClient builds a release client. timeout bounds each feed request when
// no HTTP client is supplied.
func NewClient(timeout time.Duration, opts ...Option) (*Client, error) {
	c := &Client{userAgent: defaultUserAgent}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeout}
	}
	c.gh = gogithub.NewClient(c.http)
	c.gh.UserAgent = c.userAgent
	if c.baseURL != nil {
		c.gh.BaseURL = c.baseURL
	}
	return c, nil
}

// Latest returns the first release in feed order that is neither a draft nor
// a prerelease and carries an asset named exactly asset.
func (c *Client) Latest(ctx context.Context, repo, asset string) (Release, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return Release{}, services.Wrap(services.ErrValidation, "github", "releases", "", err)
	}
	releases, _, err := c.gh.Repositories.ListReleases(ctx, owner, name, &gogithub.ListOptions{PerPage: 30})
	if err != nil {
		return Release{}, services.Wrap(services.ErrNetwork, "github", "releases", repo, err)
	}
	for _, rel := range releases {
		if rel.GetDraft() || rel.GetPrerelease() {
			continue
		}
		for _, a := range rel.Assets {
			if a.GetName() != asset {
				continue
			}
			return Release{
				Tag:         rel.GetTagName(),
				DownloadURL: a.GetBrowserDownloadURL(),
				Size:        int64(a.GetSize()),
			}, nil
		}
	}
	return Release{}, fmt.Errorf("%s asset %q: %w", repo, asset, ErrNoRelease)
}

// Feed binds a Client to one repository and asset.
type Feed struct {
	Client *Client
	Repo   string
	Asset  string
}

// Latest returns the newest stable release of the bound asset.
func (f Feed) Latest(ctx context.Context) (Release, error) {
	return f.Client.Latest(ctx, f.Repo, f.Asset)
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
