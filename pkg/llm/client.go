// Package llm talks to the OpenAI Responses API: grammar-constrained SQL
// generation plus the small JSON-schema calls around it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/grammar"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// ErrUnsupportedQuery is returned when the LLM determines the query
// cannot be answered with the available schema.
type ErrUnsupportedQuery struct {
	Reason        string
	AvailableData string
}

func (e ErrUnsupportedQuery) Error() string {
	return e.Reason
}

func NewClient(cfg *config.Config) *Client {
	c := &Client{
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		baseURL:    strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		httpClient: http.DefaultClient,
	}
	if c.model == "" {
		c.model = "gpt-5"
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c
}

// WithHTTPClient replaces the HTTP client (tests point it at httptest servers).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Request/Response types for OpenAI Responses API
type ResponsesRequest struct {
	Model             string      `json:"model"`
	Input             string      `json:"input"`
	Tools             []Tool      `json:"tools,omitempty"`
	ParallelToolCalls *bool       `json:"parallel_tool_calls,omitempty"`
	Text              *TextConfig `json:"text,omitempty"`
}

type Tool struct {
	Type        string              `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Format      *grammar.ToolFormat `json:"format,omitempty"`
	Parameters  any                 `json:"parameters,omitempty"`
}

type TextConfig struct {
	Format TextFormat `json:"format"`
}

// TextFormat requests structured output matching Schema.
type TextFormat struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Strict bool   `json:"strict"`
}

type ResponsesResponse struct {
	ID     string       `json:"id"`
	Output []OutputItem `json:"output"`
}

type OutputItem struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Input     string `json:"input,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
}

// OutputText concatenates the text parts of every message item.
func (r *ResponsesResponse) OutputText() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

func (c *Client) createResponse(ctx context.Context, reqBody ResponsesRequest) (*ResponsesResponse, error) {
	reqBody.Model = c.model

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai error (%d): %s", resp.StatusCode, string(body))
	}

	var result ResponsesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// structured runs a json_schema call and decodes the output text into out.
func (c *Client) structured(ctx context.Context, name, input string, jsonSchema map[string]any, out any) error {
	resp, err := c.createResponse(ctx, ResponsesRequest{
		Input: input,
		Text: &TextConfig{Format: TextFormat{
			Type:   "json_schema",
			Name:   name,
			Schema: jsonSchema,
			Strict: true,
		}},
	})
	if err != nil {
		return err
	}
	text := resp.OutputText()
	if text == "" {
		return fmt.Errorf("no %s output in response", name)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse %s output: %w", name, err)
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}
