// Package localproc implements the subprocess adapter. It runs the configured
// backend CLI, feeds it the flattened transcript on stdin, and translates the
// newline-delimited JSON it writes on stdout into normalized stream events.
package localproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/stream"
)

// Ensure Adapter implements the backend capability.
var _ backend.Adapter = (*Adapter)(nil)

// stderr is captured for diagnostics only; cap what we keep.
const maxStderrBytes = 8 * 1024

// Adapter streams completions from a locally spawned CLI process.
type Adapter struct {
	execPath string
	timeout  time.Duration
	logger   *log.Logger
}

// Config holds configuration for the subprocess adapter.
type Config struct {
	// ExecPath is where to spawn the local backend.
	ExecPath string
	// Timeout is the ceiling on subprocess wall-clock time; defaults to 5m.
	Timeout time.Duration
	// Logger receives soft warnings for skipped malformed lines; defaults to
	// the package-level logger.
	Logger *log.Logger
}

// New creates a subprocess Adapter instance.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.ExecPath) == "" {
		return nil, errors.New("localproc: executable path required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Adapter{execPath: cfg.ExecPath, timeout: timeout, logger: logger}, nil
}

// outputLine is the minimal schema of the child's stdout records: an init
// record (ignored), content records carrying response fragments, and exactly
// one result record carrying usage, cost and the success flag.
type outputLine struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"message,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Result  string `json:"result,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// Stream spawns the backend CLI and relays its output. The process is
// guaranteed to be reaped on every exit path, including cancellation and
// timeout.
func (a *Adapter) Stream(ctx context.Context, req backend.Request) (<-chan stream.Event, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, errors.New("localproc: empty transcript")
	}

	ch := make(chan stream.Event, 16)
	go a.run(ctx, req, ch)
	return ch, nil
}

func (a *Adapter) run(ctx context.Context, req backend.Request, ch chan<- stream.Event) {
	defer close(ch)

	if _, err := exec.LookPath(a.execPath); err != nil {
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrUnavailable, "localproc: executable %s: %v", a.execPath, err))
		return
	}

	// Timeout is a specialization of cancellation triggered here.
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := []string{"--output-format", "stream-json"}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	cmd := exec.CommandContext(runCtx, a.execPath, args...)
	cmd.Stdin = strings.NewReader(req.Transcript)
	// Bounded grace period: if anything inherits our pipes and outlives the
	// kill, force-close them so the read loop cannot hang past teardown.
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrUnavailable, "localproc: stdout pipe: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrUnavailable, "localproc: spawn %s: %v", a.execPath, err))
		return
	}

	var (
		terminalSent  bool
		validSeen     bool
		firstBadLine  string
		malformedSeen int
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec outputLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			malformedSeen++
			if firstBadLine == "" {
				firstBadLine = excerpt(line, 120)
			}
			a.logger.Printf("[WARN] localproc: skipping malformed output line: %s", excerpt(line, 120))
			continue
		}

		switch rec.Type {
		case "system":
			// setup/init record
			validSeen = true
		case "assistant":
			validSeen = true
			if terminalSent {
				continue
			}
			for _, block := range rec.Message.Content {
				if block.Text != "" {
					ch <- stream.DeltaEvent(block.Text)
				}
			}
		case "result":
			validSeen = true
			if terminalSent {
				continue
			}
			terminalSent = true
			if rec.IsError {
				detail := rec.Result
				if detail == "" {
					detail = "backend reported failure"
				}
				ch <- stream.ErrorEvent(stream.Errorf(stream.ErrProcessFailure, "localproc: %s", detail))
				continue
			}
			ch <- stream.UsageEvent(stream.Usage{
				PromptTokens:     rec.Usage.InputTokens,
				CompletionTokens: rec.Usage.OutputTokens,
				TotalTokens:      rec.Usage.InputTokens + rec.Usage.OutputTokens,
				CostUSD:          rec.TotalCostUSD,
			})
			ch <- stream.DoneEvent()
		default:
			malformedSeen++
			if firstBadLine == "" {
				firstBadLine = excerpt(line, 120)
			}
			a.logger.Printf("[WARN] localproc: skipping record of unknown type %q", rec.Type)
		}
	}

	// Reap the child on every path. CommandContext has already delivered the
	// kill when runCtx ended; Wait collects the exit status either way.
	waitErr := cmd.Wait()

	if terminalSent {
		return
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		if !validSeen && firstBadLine != "" {
			// The stream never recovered from malformed framing before the
			// deadline; surface that instead of a bare timeout.
			ch <- stream.ErrorEvent(stream.Errorf(stream.ErrProcessFailure, "localproc: no parseable output before deadline, first line: %s", firstBadLine))
			return
		}
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrTimeout, "localproc: exceeded %s", a.timeout))
	case ctx.Err() != nil:
		// Caller cancellation ends the sequence without a terminal event.
		return
	case waitErr != nil:
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrProcessFailure, "localproc: %v: %s", waitErr, excerpt(stderr.String(), 512)))
	default:
		ch <- stream.ErrorEvent(stream.Errorf(stream.ErrProcessFailure, "localproc: exited without result record: %s", excerpt(stderr.String(), 512)))
	}
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// limitedWriter keeps the first limit bytes and drops the rest.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if remaining := lw.limit - lw.w.Len(); remaining > 0 {
		if len(p) > remaining {
			lw.w.Write(p[:remaining])
		} else {
			lw.w.Write(p)
		}
	}
	return len(p), nil
}
