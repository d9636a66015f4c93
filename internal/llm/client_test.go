package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recipeOut struct {
	Title string `json:"title"`
}

func newTestClient(t *testing.T, p Provider, url string) *Client {
	t.Helper()
	c, err := New(Options{Provider: p, BaseURL: url, APIKey: "k", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var listSchema = Schema{
	Name:       "recipes",
	Definition: json.RawMessage(`{"type":"object","properties":{"recipes":{"type":"array"}}}`),
	WrapKey:    "recipes",
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(Options{Provider: ProviderOpenAI})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNew_KeyFromEnvAndDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "secret")
	c, err := New(Options{Provider: "Anthropic"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Provider() != ProviderAnthropic || c.Model() != defaultAnthropicModel || c.apiKey != "secret" {
		t.Fatalf("unexpected client: %+v", c)
	}
	if c.timeout != defaultTimeout || c.maxTokens != defaultMaxTokens {
		t.Fatalf("defaults not applied: timeout=%s maxTokens=%d", c.timeout, c.maxTokens)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Options{Provider: "bard", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestOpenAI_DecodesWrappedFencedContent(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		content := "```json\n{\"recipes\":[{\"title\":\"A\"},{\"title\":\"B\"}]}\n```"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ProviderOpenAI, ts.URL)
	var out []recipeOut
	if err := c.Complete(context.Background(), Request{Op: "templates", Prompt: "p", Schema: listSchema}, &out); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(out) != 2 || out[0].Title != "A" || out[1].Title != "B" {
		t.Fatalf("unexpected out: %+v", out)
	}
	if gotAuth != "Bearer k" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", gotBody["response_format"])
	}
}

func TestOpenAI_HTTPErrorIsUpstreamGeneration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := newTestClient(t, ProviderOpenAI, ts.URL)
	var out []recipeOut
	err := c.Complete(context.Background(), Request{Op: "templates", Schema: listSchema}, &out)
	if !IsUpstreamGeneration(err) {
		t.Fatalf("expected upstream generation error, got %v", err)
	}
	var ue *UpstreamGenerationError
	if !errors.As(err, &ue) || ue.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502 in error, got %v", err)
	}
}

func TestOpenAI_EmptyAndInvalidContent(t *testing.T) {
	for name, content := range map[string]string{
		"empty":   "   ",
		"invalid": "here are your recipes!",
	} {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
				})
			}))
			defer ts.Close()
			c := newTestClient(t, ProviderOpenAI, ts.URL)
			var out []recipeOut
			if err := c.Complete(context.Background(), Request{Op: "x", Schema: listSchema}, &out); !IsUpstreamGeneration(err) {
				t.Fatalf("expected upstream generation error, got %v", err)
			}
		})
	}
}

func TestAnthropic_ToolUseInput(t *testing.T) {
	var gotBody struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"input_schema"`
		} `json:"tools"`
		ToolChoice struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"tool_choice"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers: %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[{"type":"tool_use","name":"recipes","input":{"recipes":[{"title":"Soup"}]}}],"stop_reason":"tool_use"}`)
	}))
	defer ts.Close()

	// a configured /v1 suffix is accepted; the SDK adds it itself
	c := newTestClient(t, ProviderAnthropic, ts.URL+"/v1")
	var out []recipeOut
	if err := c.Complete(context.Background(), Request{Op: "templates", Prompt: "p", Schema: listSchema}, &out); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(out) != 1 || out[0].Title != "Soup" {
		t.Fatalf("unexpected out: %+v", out)
	}
	if gotBody.ToolChoice.Type != "tool" || gotBody.ToolChoice.Name != "recipes" || len(gotBody.Tools) != 1 {
		t.Fatalf("tool choice not forced: %+v", gotBody)
	}
	if props, _ := gotBody.Tools[0].InputSchema["properties"].(map[string]any); props["recipes"] == nil {
		t.Fatalf("input schema lost its properties: %+v", gotBody.Tools[0].InputSchema)
	}
}

func TestAnthropic_RequiresSchema(t *testing.T) {
	c := newTestClient(t, ProviderAnthropic, "http://127.0.0.1:1")
	var out map[string]any
	if err := c.Complete(context.Background(), Request{Op: "x"}, &out); !IsUpstreamGeneration(err) {
		t.Fatalf("expected upstream generation error, got %v", err)
	}
}

func TestComplete_CanceledContextIsNotUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()
	c := newTestClient(t, ProviderOpenAI, ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	var out []recipeOut
	err := c.Complete(ctx, Request{Op: "x", Schema: listSchema}, &out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUpstreamGenerationError_Message(t *testing.T) {
	err := &UpstreamGenerationError{Op: "details", Status: 500, Msg: "oops"}
	if got := err.Error(); !strings.Contains(got, "details") || !strings.Contains(got, "500") || !strings.Contains(got, "oops") {
		t.Fatalf("unexpected message: %q", got)
	}
}

// chatServer answers every chat completion with content and records request bodies.
func chatServer(t *testing.T, content string, bodies chan<- map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if bodies != nil {
			bodies <- body
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestOpenAI_Temperature(t *testing.T) {
	zero := 0.0
	for name, tc := range map[string]struct {
		opt  *float64
		want float64
	}{
		"unset":    {nil, defaultTemperature},
		"explicit": {&zero, 0},
	} {
		t.Run(name, func(t *testing.T) {
			bodies := make(chan map[string]any, 1)
			ts := chatServer(t, `{"title":"A"}`, bodies)
			c, err := New(Options{Provider: ProviderOpenAI, BaseURL: ts.URL, APIKey: "k", Temperature: tc.opt})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var out recipeOut
			if err := c.Complete(context.Background(), Request{Op: "x", Prompt: "p"}, &out); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			body := <-bodies
			got, ok := body["temperature"].(float64)
			if !ok || got != tc.want {
				t.Fatalf("temperature = %v, want %v", body["temperature"], tc.want)
			}
		})
	}
}

func TestClient_CloseDuringFirstRequests(t *testing.T) {
	ts := chatServer(t, `{"title":"A"}`, nil)
	c := newTestClient(t, ProviderOpenAI, ts.URL)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			var out recipeOut
			if err := c.Complete(context.Background(), Request{Op: "x", Prompt: "p"}, &out); err != nil {
				t.Errorf("Complete: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = c.Close()
		}()
	}
	wg.Wait()
}
