// Package agent invokes the LLM agent CLI as a fresh subprocess per request
// and parses its stream-json output.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/observability"
)

const (
	// scanBufferSize bounds a single NDJSON line.
	scanBufferSize = 1024 * 1024
	// stderrRingSize keeps the tail of stderr for diagnostics.
	stderrRingSize = 8 * 1024
	// killGrace is the SIGTERM→SIGKILL window.
	killGrace = 5 * time.Second
	// noticeWindow throttles interim notices globally.
	noticeWindow = 3 * time.Second
)

// Invoker runs agent subprocesses.
type Invoker struct {
	cfg     config.AgentConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	grace  time.Duration
	now    func() time.Time
	newCmd func(bin string, args ...string) *exec.Cmd
}

// New creates an invoker. metrics may be nil.
func New(cfg config.AgentConfig, logger *observability.Logger, metrics *observability.Metrics) *Invoker {
	return &Invoker{
		cfg:     cfg,
		logger:  logger.With("component", "agent"),
		metrics: metrics,
		grace:   killGrace,
		now:     time.Now,
		newCmd:  exec.Command,
	}
}

// buildArgs is the CLI contract: print mode, streamed NDJSON output, no
// permission prompts, no session persistence.
func buildArgs(model string) []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
		"--no-session-persistence",
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

// scrubEnv drops platform secrets from the inherited environment.
func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		upper := strings.ToUpper(name)
		if strings.HasPrefix(upper, "DISCORD") || strings.HasPrefix(upper, "DONNA_") ||
			strings.Contains(upper, "BOT_TOKEN") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Invoke runs one agent subprocess to completion: envelope in on stdin,
// NDJSON events out on stdout, final text from the result event.
func (v *Invoker) Invoke(ctx context.Context, job *Job) (string, *Invocation, error) {
	timeout := v.cfg.MaxRunTime.Std()
	if job.Timeout > 0 && job.Timeout < timeout {
		timeout = job.Timeout
	}
	if max := v.cfg.MaxRunTimeCap.Std(); max > 0 && timeout > max {
		timeout = max
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := &Invocation{
		RequestID:  job.RequestID,
		StartedAt:  v.now(),
		InputBytes: len(job.Envelope),
	}

	model := job.Model
	if model == "" {
		model = v.cfg.Model
	}
	cmd := v.newCmd(v.cfg.Binary, buildArgs(model)...)
	if cmd.Dir == "" {
		cmd.Dir = job.WorkDir
		if cmd.Dir == "" {
			cmd.Dir = v.cfg.WorkDir
		}
	}
	cmd.Stdin = bytes.NewReader(job.Envelope)
	if cmd.Env == nil {
		cmd.Env = scrubEnv(os.Environ())
	}
	// Own process group so cancellation reaches the CLI's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}

	ring := newRing(stderrRingSize)
	cmd.Stderr = ring

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", v.finish(ctx, inv, StatusNonzeroExit), NewError(ErrNonzeroExit, "stdout pipe").WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		return "", v.finish(ctx, inv, StatusNonzeroExit), NewError(ErrNonzeroExit, "start agent").WithCause(err)
	}
	inv.PID = cmd.Process.Pid

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			v.terminate(cmd.Process.Pid, waitDone)
		case <-waitDone:
		}
	}()

	res := v.readStream(runCtx, stdout, job, inv)
	if res.oversize || res.sawResult {
		// Stop the subprocess; nothing further on stdout is wanted.
		cancel()
	}
	waitErr := cmd.Wait()
	close(waitDone)
	inv.StderrExcerpt = ring.String()

	ctxErr := runCtx.Err()
	switch {
	case res.oversize:
		err := NewError(ErrOversize, "agent output exceeded cap").
			WithContext("cap_bytes", v.cfg.MaxOutputBytes)
		return "", v.finish(ctx, inv, StatusKilled), err

	case res.sawResult:
		inv.ResultText = res.result
		return res.result, v.finish(ctx, inv, StatusOK), nil

	case errors.Is(ctxErr, context.DeadlineExceeded):
		err := NewError(ErrTimeout, fmt.Sprintf("no result within %s", timeout)).
			WithContext("events", inv.StreamedEvents)
		return "", v.finish(ctx, inv, StatusTimeout), err

	case ctxErr != nil:
		err := NewError(ErrTimeout, "invocation cancelled").WithCause(ctxErr)
		return "", v.finish(ctx, inv, StatusKilled), err

	case len(res.textParts) > 0 && waitErr == nil:
		// Stream closed cleanly without a result event; the assistant text
		// seen so far is the answer.
		text := strings.Join(res.textParts, "\n")
		inv.ResultText = text
		return text, v.finish(ctx, inv, StatusOK), nil

	case waitErr != nil:
		err := NewError(ErrNonzeroExit, "agent exited without result").
			WithCause(waitErr).
			WithContext("stderr", inv.StderrExcerpt)
		return "", v.finish(ctx, inv, StatusNonzeroExit), err

	default:
		err := NewError(ErrParseError, "stream ended with no parseable events").
			WithContext("malformed_lines", res.malformed)
		return "", v.finish(ctx, inv, StatusParseError), err
	}
}

func (v *Invoker) finish(ctx context.Context, inv *Invocation, status Status) *Invocation {
	inv.FinalStatus = status
	inv.Duration = v.now().Sub(inv.StartedAt)
	if v.metrics != nil {
		v.metrics.InvokeDuration.WithLabelValues(string(status)).Observe(inv.Duration.Seconds())
	}
	v.logger.Info(ctx, "invocation finished",
		"status", string(status),
		"events", inv.StreamedEvents,
		"notices", inv.InterimNotices,
		"duration_ms", inv.Duration.Milliseconds(),
	)
	return inv
}

// terminate signals the process group: SIGTERM, bounded grace, SIGKILL.
func (v *Invoker) terminate(pid int, waitDone <-chan struct{}) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-waitDone:
	case <-time.After(v.grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

type streamResult struct {
	result    string
	sawResult bool
	textParts []string
	malformed int
	oversize  bool
}

// readStream consumes NDJSON events until a result event, the output cap, or
// EOF.
func (v *Invoker) readStream(ctx context.Context, r io.Reader, job *Job, inv *Invocation) *streamResult {
	res := &streamResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), scanBufferSize)

	var total int64
	seenTools := make(map[string]bool)
	var lastNotice time.Time

	for scanner.Scan() {
		line := scanner.Bytes()
		total += int64(len(line)) + 1
		if v.cfg.MaxOutputBytes > 0 && total > v.cfg.MaxOutputBytes {
			res.oversize = true
			return res
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			res.malformed++
			v.logger.Debug(ctx, "malformed stream line dropped", "error", err)
			continue
		}
		inv.StreamedEvents++

		switch ev.Type {
		case "system":
			v.logger.Debug(ctx, "agent system event", "subtype", ev.Subtype)

		case "assistant":
			var msg parsedMessage
			if err := json.Unmarshal(ev.Message, &msg); err != nil {
				res.malformed++
				continue
			}
			for _, block := range msg.Content {
				switch block.Type {
				case "text":
					if block.Text != "" {
						res.textParts = append(res.textParts, block.Text)
					}
				case "tool_use":
					if job.Notice == nil || block.Name == "" || seenTools[block.Name] {
						continue
					}
					if now := v.now(); now.Sub(lastNotice) >= noticeWindow {
						seenTools[block.Name] = true
						lastNotice = now
						inv.InterimNotices++
						job.Notice(block.Name)
					}
				}
			}

		case "result":
			res.result = ev.Result
			res.sawResult = true
			return res

		default:
			// Unrecognised event types are skipped.
		}
	}
	if err := scanner.Err(); err != nil {
		v.logger.Debug(ctx, "stream read ended", "error", err)
	}
	return res
}
