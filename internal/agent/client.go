package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"archpilot/internal/sse"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type Config struct {
	BaseURL    string
	Debug      bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	debug      bool
	httpClient *http.Client
	logger     *slog.Logger
}

// Request identifies the architecture an agent works on. Agents only accept
// the diagram inline, so a bare ArchName is first resolved to its stored
// mermaid code.
type Request struct {
	ArchName    string
	MermaidCode string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.ArchName) == "" && strings.TrimSpace(r.MermaidCode) == "" {
		return errors.New("architecture name or mermaid code is required")
	}
	return nil
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("agent base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme: %q", u.Scheme)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		debug:      cfg.Debug,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Stream posts req to the endpoint's streaming route and delivers decoded
// step events to handle in order. A dropped connection or cancelled context
// is returned as *sse.TransportError, whether it happens before or after the
// response headers arrive.
func (c *Client) Stream(ctx context.Context, ep Endpoint, req Request, handle sse.Sink) error {
	req, err := c.resolve(ctx, req)
	if err != nil {
		return err
	}
	body, err := encodeRequest(req)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	logger := c.logger.With("endpoint", ep.Name, "request_id", requestID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.StreamPath(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set(requestIDHeader, requestID)

	logger.Info("agent stream started")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("agent stream aborted before response", "error", err)
			return &sse.TransportError{Err: err}
		}
		return fmt.Errorf("agent request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return readAgentError(httpResp.Body, httpResp.StatusCode)
	}

	dropped := 0
	decoder := sse.NewDecoder(
		sse.WithPolicy(ep.Policy),
		sse.WithDebug(c.debug),
		sse.WithLogger(logger),
		sse.WithErrorObserver(func(frame string, err error) {
			dropped++
			logger.Warn("dropping undecodable frame", "error", err, "frame_bytes", len(frame))
		}),
	)
	events := 0
	err = decoder.Decode(httpResp.Body, func(ev sse.StepEvent) error {
		events++
		if handle == nil {
			return nil
		}
		return handle(ev)
	})
	if err != nil {
		logger.Warn("agent stream ended with error", "error", err, "events", events)
		return err
	}
	logger.Info("agent stream finished", "events", events, "dropped_frames", dropped)
	return nil
}

// Run calls the non-streaming variant of the endpoint and returns its
// final summary.
func (c *Client) Run(ctx context.Context, ep Endpoint, req Request) (string, error) {
	req, err := c.resolve(ctx, req)
	if err != nil {
		return "", err
	}
	body, err := encodeRequest(req)
	if err != nil {
		return "", err
	}
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.do(ctx, http.MethodPost, ep.Path, body, "application/json", &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// resolve fills in the mermaid code of a request that names a stored
// architecture.
func (c *Client) resolve(ctx context.Context, req Request) (Request, error) {
	if err := req.validate(); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.MermaidCode) != "" {
		return req, nil
	}
	diagram, err := c.ArchCode(ctx, req.ArchName)
	if err != nil {
		return req, fmt.Errorf("resolve architecture %q: %w", req.ArchName, err)
	}
	if strings.TrimSpace(diagram.MermaidCode) == "" {
		return req, fmt.Errorf("architecture %q has no mermaid code", req.ArchName)
	}
	c.logger.Debug("resolved architecture", "arch_name", req.ArchName, "bytes", len(diagram.MermaidCode))
	req.MermaidCode = diagram.MermaidCode
	return req, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("agent request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return readAgentError(httpResp.Body, httpResp.StatusCode)
	}
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var failure agentError
	if err := json.Unmarshal(data, &failure); err == nil && failure.Error != "" {
		return fmt.Errorf("agent error: %s", failure.Error)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func encodeRequest(req Request) (io.Reader, error) {
	data, err := json.Marshal(map[string]string{"mermaid_code": req.MermaidCode})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

func encodeForm(fields map[string]string) (io.Reader, string, error) {
	return encodeMultipart(fields, nil)
}

// formFile is a file part of a multipart request.
type formFile struct {
	field string
	name  string
	data  io.Reader
}

func encodeMultipart(fields map[string]string, file *formFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile(file.field, file.name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", file.field, err)
		}
		if _, err := io.Copy(part, file.data); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", file.field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func readAgentError(body io.Reader, status int) error {
	var resp agentError
	_ = json.NewDecoder(body).Decode(&resp)
	if msg := resp.message(); msg != "" {
		return fmt.Errorf("agent request failed: %s (status %d)", msg, status)
	}
	return fmt.Errorf("agent request failed with status %d", status)
}

type agentError struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

func (e agentError) message() string {
	if e.Error != "" {
		return e.Error
	}
	if len(e.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(e.Detail, &text); err == nil {
		return text
	}
	return string(e.Detail)
}
