package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/language"

	"reembed/internal/services"
)

// DefaultBaseURL is the web origin serving the item-detail API.
const DefaultBaseURL = "https://www.tiktok.com"

// Image is one slide of a photo post.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Post is the media a photo post references.
type Post struct {
	Images   []Image
	AudioURL string
}

type itemDetail struct {
	ItemInfo struct {
		ItemStruct struct {
			ImagePost *struct {
				Images []struct {
					ImageURL struct {
						URLList []string `json:"urlList"`
					} `json:"imageURL"`
					ImageWidth  int `json:"imageWidth"`
					ImageHeight int `json:"imageHeight"`
				} `json:"images"`
			} `json:"imagePost"`
			Music *struct {
				PlayURL string `json:"playUrl"`
			} `json:"music"`
		} `json:"itemStruct"`
	} `json:"itemInfo"`
}

// Client fetches item details from the web API.
type Client struct {
	HTTP      *http.Client
	BaseURL   string
	UserAgent string
	Locale    language.Tag
	Signer    Signer
}

// NewClient parses locale and returns a Client for the public origin.
func NewClient(signer Signer, userAgent, locale string, timeout time.Duration) (*Client, error) {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "tiktok", "locale", locale, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Locale:    tag,
		Signer:    signer,
	}, nil
}

// ItemURL is the unsigned item-detail request for postID.
func (c *Client) ItemURL(postID string) string {
	base, _ := c.Locale.Base()
	region, _ := c.Locale.Region()
	params := url.Values{}
	params.Set("aid", "1988")
	params.Set("app_name", "tiktok_web")
	params.Set("app_language", base.String())
	params.Set("browser_language", c.Locale.String())
	params.Set("browser_name", "Mozilla")
	params.Set("browser_online", "true")
	params.Set("browser_platform", "Win32")
	params.Set("browser_version", strings.TrimPrefix(c.UserAgent, "Mozilla/"))
	params.Set("channel", "tiktok_web")
	params.Set("cookie_enabled", "false")
	params.Set("device_platform", "web_pc")
	params.Set("focus_state", "true")
	params.Set("from_page", "user")
	params.Set("history_len", "2")
	params.Set("is_fullscreen", "false")
	params.Set("is_page_visible", "true")
	params.Set("language", base.String())
	params.Set("os", "windows")
	params.Set("region", region.String())
	params.Set("user_is_login", "false")
	params.Set("webcast_language", base.String())
	params.Set("itemId", postID)
	return strings.TrimRight(c.BaseURL, "/") + "/api/item/detail/?" + params.Encode()
}

// Fetch signs and issues the item-detail request for postID.
func (c *Client) Fetch(ctx context.Context, postID string) (Post, error) {
	unsigned := c.ItemURL(postID)
	token, err := c.Signer.Sign(ctx, unsigned)
	if err != nil {
		return Post{}, fmt.Errorf("sign item request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, unsigned+"&X-Bogus="+url.QueryEscape(token), nil)
	if err != nil {
		return Post{}, fmt.Errorf("build item request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", c.Locale.String()+",en;q=0.5")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept-Encoding", "gzip, deflate, zstd")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Post{}, services.Wrap(services.ErrNetwork, "tiktok", "item detail", postID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Post{}, services.Wrap(services.ErrNetwork, "tiktok", "item detail", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	body, err := decodeBody(resp)
	if err != nil {
		return Post{}, services.Wrap(services.ErrNetwork, "tiktok", "item detail", "decode body", err)
	}
	defer body.Close()
	return parseItem(body)
}

func parseItem(r io.Reader) (Post, error) {
	var detail itemDetail
	if err := json.NewDecoder(r).Decode(&detail); err != nil {
		return Post{}, services.Wrap(services.ErrValidation, "tiktok", "item detail", "parse response", err)
	}
	item := detail.ItemInfo.ItemStruct
	var post Post
	if item.ImagePost != nil {
		for _, img := range item.ImagePost.Images {
			if len(img.ImageURL.URLList) == 0 || strings.TrimSpace(img.ImageURL.URLList[0]) == "" {
				continue
			}
			post.Images = append(post.Images, Image{
				URL:    img.ImageURL.URLList[0],
				Width:  img.ImageWidth,
				Height: img.ImageHeight,
			})
		}
	}
	if item.Music != nil {
		post.AudioURL = strings.TrimSpace(item.Music.PlayURL)
	}
	if len(post.Images) == 0 {
		return Post{}, ErrNoImagesFound
	}
	return post, nil
}

// decodeBody undoes the Content-Encoding the server chose. Setting
// Accept-Encoding by hand disables the transport's own gzip handling.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return zlib.NewReader(resp.Body)
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
