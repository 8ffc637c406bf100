// Package remote implements the streaming HTTP adapter. It issues a chunked
// completion request and translates the incremental SSE payloads into
// normalized stream events.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/stream"
)

// Ensure Adapter implements the backend capability.
var _ backend.Adapter = (*Adapter)(nil)

// Adapter streams completions from a remote HTTP endpoint.
type Adapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for the remote adapter.
type Config struct {
	BaseURL string
	APIKey  string
	// RequestTimeout bounds the whole streaming request; defaults to 120s.
	RequestTimeout time.Duration
}

// New creates a remote Adapter instance.
func New(cfg Config) (*Adapter, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("remote: base url required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Adapter{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// chunkEvent is the minimal schema extracted from each SSE data payload. The
// exact field names are backend configuration; the adapter only needs the
// incremental text fragment and the final usage object to be extractable.
type chunkEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

// Stream opens the streaming connection and emits one TokenDelta per content
// fragment, then Usage and Done when the final chunk arrives. Failures
// surface as a single terminal Error event; fragments already delivered are
// preserved.
func (a *Adapter) Stream(ctx context.Context, req backend.Request) (<-chan stream.Event, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("remote: no messages provided")
	}

	payload := map[string]interface{}{
		"model":      req.Model,
		"messages":   req.Messages,
		"max_tokens": 4096,
		"stream":     true,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan stream.Event, 16)
	go func() {
		defer close(ch)

		httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			ch <- stream.ErrorEvent(stream.Errorf(stream.ErrUnavailable, "remote: create request: %v", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if a.apiKey != "" {
			httpReq.Header.Set("x-api-key", a.apiKey)
		}

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ch <- stream.ErrorEvent(stream.Errorf(stream.ErrUnavailable, "remote: connect: %v", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			ch <- stream.ErrorEvent(stream.Errorf(stream.ErrRemoteFailure, "remote: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
			return
		}

		a.relay(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// relay reads the SSE body and forwards normalized events until the stream
// reaches a terminal state. Events are emitted in source order; the only
// buffering is what line-splitting requires.
func (a *Adapter) relay(ctx context.Context, r io.Reader, ch chan<- stream.Event) {
	buf := make([]byte, 8192)
	leftover := ""
	var usage *stream.Usage

	finish := func() {
		if usage != nil {
			ch <- stream.UsageEvent(*usage)
		}
		ch <- stream.DoneEvent()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			data := leftover + string(buf[:n])
			lines := strings.Split(data, "\n")
			leftover = lines[len(lines)-1]
			lines = lines[:len(lines)-1]
			for _, line := range lines {
				line = strings.TrimSpace(line)
				if line == "" || strings.HasPrefix(line, "event:") {
					continue
				}
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				// keepalive pings and the SSE terminator carry no content
				if payload == "{}" || payload == "[DONE]" {
					continue
				}
				var evt chunkEvent
				if perr := json.Unmarshal([]byte(payload), &evt); perr != nil {
					ch <- stream.ErrorEvent(stream.Errorf(stream.ErrMalformedStream, "remote: parse chunk: %v", perr))
					return
				}
				switch evt.Type {
				case "content_block_delta":
					if evt.Delta.Text != "" {
						ch <- stream.DeltaEvent(evt.Delta.Text)
					}
				case "message_delta":
					usage = &stream.Usage{
						PromptTokens:     evt.Usage.InputTokens,
						CompletionTokens: evt.Usage.OutputTokens,
						TotalTokens:      evt.Usage.InputTokens + evt.Usage.OutputTokens,
					}
				case "message_stop":
					finish()
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				finish()
				return
			}
			if ctx.Err() != nil {
				return
			}
			ch <- stream.ErrorEvent(stream.Errorf(stream.ErrRemoteFailure, "remote: read stream: %v", err))
			return
		}
	}
}
