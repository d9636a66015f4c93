// Package imagegen requests images from an OpenAI-compatible image endpoint
// and turns them into compact JPEG payloads for transport.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "dall-e-3"
	defaultTimeout  = 120 * time.Second
	maxImageBytes   = 32 << 20
	errorBodyPrefix = 512
)

// Size is an image dimension request.
type Size struct {
	Width  int
	Height int
}

// DefaultSize is what the image model is asked for when nothing is configured.
var DefaultSize = Size{Width: 1024, Height: 1024}

func (s Size) String() string { return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height) }

// ParseSize parses "WIDTHxHEIGHT". An empty string yields DefaultSize.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultSize, nil
	}
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return Size{}, fmt.Errorf("imagegen: invalid size %q", s)
	}
	wi, err1 := strconv.Atoi(w)
	hi, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return Size{}, fmt.Errorf("imagegen: invalid size %q", s)
	}
	return Size{Width: wi, Height: hi}, nil
}

// Options configures a Client. Zero values mean "use the default".
type Options struct {
	BaseURL   string
	Model     string
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Client issues text-to-image requests. API failures degrade to an empty
// result; only transport faults are returned as errors.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
	log     zerolog.Logger

	mu sync.Mutex
	hc *http.Client
	oa *openai.Client
}

// New applies defaults and returns a Client. A missing key is not an error
// here: requests will simply come back empty (and be logged).
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.apiKey == "" {
		env := opts.APIKeyEnv
		if env == "" {
			env = "OPENAI_API_KEY"
		}
		c.apiKey = os.Getenv(env)
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// pooled returns the shared HTTP client. c.mu must be held.
func (c *Client) pooled() *http.Client {
	if c.hc == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		c.hc = &http.Client{Transport: tr}
	}
	return c.hc
}

func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pooled()
}

func (c *Client) openAI() *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oa == nil {
		cl := openai.NewClient(
			option.WithBaseURL(c.baseURL),
			option.WithAPIKey(c.apiKey),
			option.WithHTTPClient(c.pooled()),
			option.WithMaxRetries(0),
		)
		c.oa = &cl
	}
	return c.oa
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() error {
	c.mu.Lock()
	hc := c.hc
	c.mu.Unlock()
	if hc != nil {
		hc.CloseIdleConnections()
	}
	return nil
}

// Generate returns the raw encoded image bytes for prompt, or nil when the
// provider could not produce one. A non-nil error means the request never
// completed at the transport level (dial failure, reset, deadline).
func (c *Client) Generate(ctx context.Context, prompt string, size Size) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.apiKey == "" {
		c.log.Warn().Msg("image generation skipped: no api key")
		return nil, nil
	}
	start := time.Now()
	resp, err := c.openAI().Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(size.String()),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openai.Error
		var urlErr *url.Error
		switch {
		case ctx.Err() != nil, errors.As(err, &urlErr):
			return nil, err
		case errors.As(err, &apiErr):
			raw := apiErr.RawJSON()
			if len(raw) > errorBodyPrefix {
				raw = raw[:errorBodyPrefix]
			}
			c.log.Warn().Int("status", apiErr.StatusCode).Str("body", strings.TrimSpace(raw)).Msg("image generation failed")
		default:
			c.log.Warn().Err(err).Msg("image response undecodable")
		}
		return nil, nil
	}
	if len(resp.Data) == 0 {
		c.log.Warn().Msg("image response empty")
		return nil, nil
	}
	d := resp.Data[0]
	if d.B64JSON != "" {
		raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			c.log.Warn().Err(err).Msg("image payload not base64")
			return nil, nil
		}
		c.log.Debug().Dur("dur", time.Since(start)).Int("bytes", len(raw)).Msg("image generated")
		return raw, nil
	}
	if d.URL != "" {
		return c.fetch(ctx, d.URL)
	}
	return nil, nil
}

// fetch downloads an image the provider returned by reference.
func (c *Client) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("image url invalid")
		return nil, nil
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("image download failed")
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	return raw, nil
}
