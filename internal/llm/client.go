// Package llm issues single structured-output requests to a hosted language
// model and decodes the answer into caller-provided Go values. Two providers
// are supported through their SDKs: OpenAI-compatible chat completions with a
// JSON schema response format, and Anthropic messages with a forced tool call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	oaoption "github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

// Provider selects the upstream wire protocol.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Defaults applied when the corresponding Options fields are unset.
const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	defaultTimeout          = 60 * time.Second
	defaultMaxTokens        = 2048
	defaultTemperature      = 0.7
	defaultSystemPrompt     = "You are a helpful assistant that always responds with a valid JSON object only."
)

// Options configures a Client. Zero values mean "use the default".
type Options struct {
	Provider  Provider
	BaseURL   string
	Model     string
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
	// Temperature is sent as given, zero included; nil means the default.
	Temperature *float64
	MaxTokens   int
	Logger      zerolog.Logger
}

// Schema describes the structured output expected from the model.
// Definition must be a JSON Schema object ("type":"object"); Anthropic tool
// inputs cannot be bare arrays, so list outputs are wrapped under a property
// and WrapKey names it.
type Schema struct {
	Name        string
	Description string
	Definition  json.RawMessage
	WrapKey     string
}

// Request is one structured-output completion.
type Request struct {
	Op     string // short label used in errors and logs
	System string
	Prompt string
	Schema Schema
}

// Completer is the contract consumed by the generation stages.
type Completer interface {
	Complete(ctx context.Context, req Request, out any) error
}

// Client talks to one completion provider. It is safe for concurrent use and
// carries no per-request state.
type Client struct {
	provider    Provider
	baseURL     string
	model       string
	apiKey      string
	timeout     time.Duration
	temperature float64
	maxTokens   int
	log         zerolog.Logger

	mu sync.Mutex
	hc *http.Client
	oa *openai.Client
	an *anthropic.Client
}

// New validates opts, applies defaults and returns a Client. The underlying
// HTTP client is created lazily on the first request.
func New(opts Options) (*Client, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(string(opts.Provider))))
	if p == "" {
		p = ProviderOpenAI
	}
	c := &Client{
		provider:    p,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		apiKey:      opts.APIKey,
		timeout:     opts.Timeout,
		temperature: defaultTemperature,
		maxTokens:   opts.MaxTokens,
		log:         opts.Logger,
	}
	keyEnv := opts.APIKeyEnv
	switch p {
	case ProviderOpenAI:
		if c.baseURL == "" {
			c.baseURL = defaultOpenAIBaseURL
		}
		if c.model == "" {
			c.model = defaultOpenAIModel
		}
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
	case ProviderAnthropic:
		// the SDK adds the /v1 prefix itself
		c.baseURL = strings.TrimSuffix(c.baseURL, "/v1")
		if c.baseURL == "" {
			c.baseURL = defaultAnthropicBaseURL
		}
		if c.model == "" {
			c.model = defaultAnthropicModel
		}
		if keyEnv == "" {
			keyEnv = "ANTHROPIC_API_KEY"
		}
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", opts.Provider)
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv(keyEnv)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("llm: %w (%s)", ErrMissingAPIKey, keyEnv)
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if opts.Temperature != nil {
		c.temperature = *opts.Temperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c, nil
}

// Provider reports the configured wire protocol.
func (c *Client) Provider() Provider { return c.provider }

// Model reports the configured model id.
func (c *Client) Model() string { return c.model }

// pooled returns the shared HTTP client, creating it on first use.
// c.mu must be held.
func (c *Client) pooled() *http.Client {
	if c.hc == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Deadlines come from the per-request context; see Complete.
		c.hc = &http.Client{Transport: tr}
	}
	return c.hc
}

// openAI returns the lazily built OpenAI SDK client. Retries are disabled:
// a failed stage is reported, not replayed.
func (c *Client) openAI() *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oa == nil {
		cl := openai.NewClient(
			oaoption.WithBaseURL(c.baseURL),
			oaoption.WithAPIKey(c.apiKey),
			oaoption.WithHTTPClient(c.pooled()),
			oaoption.WithMaxRetries(0),
		)
		c.oa = &cl
	}
	return c.oa
}

// anthropicClient returns the lazily built Anthropic SDK client.
func (c *Client) anthropicClient() *anthropic.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.an == nil {
		cl := anthropic.NewClient(
			anoption.WithBaseURL(c.baseURL),
			anoption.WithAPIKey(c.apiKey),
			anoption.WithHTTPClient(c.pooled()),
			anoption.WithMaxRetries(0),
		)
		c.an = &cl
	}
	return c.an
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

// Complete sends req and decodes the structured answer into out. Every
// failure is reported as an *UpstreamGenerationError, except context
// cancellation which is returned as is.
func (c *Client) Complete(ctx context.Context, req Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if req.System == "" {
		req.System = defaultSystemPrompt
	}
	start := time.Now()
	var err error
	switch c.provider {
	case ProviderAnthropic:
		err = c.completeAnthropic(ctx, req, out)
	default:
		err = c.completeOpenAI(ctx, req, out)
	}
	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("provider", string(c.provider)).Str("op", req.Op).Dur("dur", time.Since(start)).Msg("completion")
	return err
}

// callError maps a failed SDK call. Caller cancellation stays visible; API
// errors keep their HTTP status.
func callError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return &UpstreamGenerationError{Op: op, Status: oe.StatusCode, Msg: apiMessage(oe.Message, oe.RawJSON())}
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return &UpstreamGenerationError{Op: op, Status: ae.StatusCode, Msg: apiMessage("", ae.RawJSON())}
	}
	return &UpstreamGenerationError{Op: op, Msg: "request failed", Err: err}
}

func apiMessage(msg, raw string) string {
	if msg != "" {
		return msg
	}
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return strings.TrimSpace(raw)
}

// schemaObject decodes a JSON Schema definition for the SDK request types.
func schemaObject(op string, def json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(def, &m); err != nil {
		return nil, &UpstreamGenerationError{Op: op, Msg: "invalid output schema", Err: err}
	}
	return m, nil
}
