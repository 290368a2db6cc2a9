// Package runtime implements the CLI runtime base: spawning an agent
// CLI child process, streaming its stdout through a family parser into
// normalized agentcore events, and enforcing the total-timeout and
// no-output-watchdog lifecycle. Grounded on the teacher's
// internal/mcp/transport_stdio.go (spawn, pipes, line-scanner read
// loop, stderr-drain goroutine, sync.WaitGroup shutdown) and
// internal/channels/signal/adapter.go (one subprocess owned
// end-to-end by one adapter instance, context.CancelFunc teardown).
package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/remoteclaw/core/pkg/agentcore"
	"github.com/remoteclaw/core/pkg/agentcore/classify"
	"github.com/remoteclaw/core/pkg/agentcore/logging"
	"github.com/remoteclaw/core/pkg/agentcore/metrics"
	"github.com/remoteclaw/core/pkg/agentcore/parser"
)

// Runtime executes one agent CLI invocation, returning a channel the
// caller drains to completion. The channel always ends with exactly
// one done event; cancelling ctx aborts the run (SIGTERM, then
// SIGKILL after a grace period).
type Runtime interface {
	Execute(ctx context.Context, params agentcore.AgentRuntimeParams) (<-chan *agentcore.AgentEvent, error)
}

// BackendConfig is the operator-supplied configuration for one backend
// instance of a runtime family (extra argv, env overlay, cleared env
// keys, watchdog overrides).
type BackendConfig struct {
	ExtraArgs               []string
	Env                     map[string]string
	ClearEnv                []string
	FreshNoOutputTimeoutMs  int64
	ResumeNoOutputTimeoutMs int64

	// Metrics, if set, is observed on every spawn and exit of this
	// backend's runtime. Nil is safe: every Metrics method is a no-op
	// on a nil receiver.
	Metrics *metrics.Metrics
}

// ArgvBuilder renders the full argv for one invocation. promptInStdin
// is true when the prompt exceeds the family's long-prompt threshold
// and is being delivered over stdin instead — the builder must omit
// the prompt positional/flag in that case.
type ArgvBuilder func(p agentcore.AgentRuntimeParams, extraArgs []string, promptInStdin bool) []string

// EnvBuilder renders the family's env overlay ("KEY=value" entries)
// from the operator env overlay and the resolved auth in p. The base
// merges the result onto the parent env (already stripped of clearEnv
// keys), later entries winning. Auth env must win over the operator
// overlay.
type EnvBuilder func(p agentcore.AgentRuntimeParams, operatorEnv map[string]string) []string

// StdinBuilder decides what (if anything) to write to the child's
// stdin before closing it.
type StdinBuilder func(p agentcore.AgentRuntimeParams, promptInStdin bool) (data string, shouldWrite bool)

// ExitClassifier lets a family override default exit-code
// classification (e.g. Gemini's fixed exit-53 mapping). ok is false to
// fall through to the default classifier applied to stderr.
type ExitClassifier func(exitCode int, stderr string) (message string, category agentcore.ErrorCategory, ok bool)

// FamilyConfig is the five-item contract spec.md §4.D requires of
// every CLI runtime implementation.
type FamilyConfig struct {
	Command               string
	BuildArgv              ArgvBuilder
	BuildEnv               EnvBuilder
	BuildStdin             StdinBuilder
	ClassifyExit           ExitClassifier
	NewParser              func() parser.Parser
	LongPromptThresholdCh  int // 0 means the package default of 10000
}

const defaultLongPromptThreshold = 10_000

const abortGrace = 5 * time.Second

// commandFn is a seam for hermetic tests: it is the sole entry point
// this package uses to build an *exec.Cmd, so tests can substitute a
// bash -c fixture script in place of a real agent CLI binary.
var commandFn = exec.CommandContext

// Base implements the shared spawn/stream/watchdog/abort machinery.
// Family packages build one with NewBase, supplying a FamilyConfig.
type Base struct {
	family  FamilyConfig
	backend BackendConfig
	logger  *slog.Logger
}

// NewBase constructs the shared runtime machinery for one family.
func NewBase(family FamilyConfig, backend BackendConfig) *Base {
	if family.LongPromptThresholdCh <= 0 {
		family.LongPromptThresholdCh = defaultLongPromptThreshold
	}
	return &Base{
		family:  family,
		backend: backend,
		logger:  slog.Default().With("runtime", family.Command),
	}
}

// Execute implements Runtime.
func (b *Base) Execute(ctx context.Context, params agentcore.AgentRuntimeParams) (<-chan *agentcore.AgentEvent, error) {
	events := make(chan *agentcore.AgentEvent, 64)

	promptInStdin := len(params.Prompt) > b.family.LongPromptThresholdCh

	argv := b.family.BuildArgv(params, b.backend.ExtraArgs, promptInStdin)
	env := b.buildChildEnv(params)

	// The abort watcher in drive owns the SIGTERM-then-SIGKILL sequence,
	// so the command itself must not kill the child when ctx is done.
	cmd := commandFn(context.WithoutCancel(ctx), b.family.Command, argv...)
	cmd.Dir = params.WorkspaceDir
	cmd.Env = env

	b.logger.Info("spawning agent runtime",
		"command", b.family.Command,
		"argv", argv,
		"workspace", params.WorkspaceDir,
		"auth_mode", params.Auth.Mode,
		"auth_source", params.Auth.Source,
		"auth_key_masked", logging.MaskSecret(params.Auth.APIKey),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", b.family.Command, err)
	}
	b.backend.Metrics.ObserveSpawn(b.family.Command)

	if b.family.BuildStdin != nil {
		if data, ok := b.family.BuildStdin(params, promptInStdin); ok {
			_, _ = stdin.Write([]byte(data))
		}
	}
	_ = stdin.Close()

	run := &runState{
		base:       b,
		cmd:        cmd,
		params:     params,
		events:     events,
		parser:     b.family.NewParser(),
		startTime:  time.Now(),
		watchdogMs: resolveWatchdogMs(params.TimeoutMs, params.SessionID != "", b.backend),
	}

	go run.drive(ctx, stdout, stderr)

	return events, nil
}

func (b *Base) buildChildEnv(params agentcore.AgentRuntimeParams) []string {
	parent := os.Environ()
	cleared := make(map[string]bool, len(b.backend.ClearEnv))
	for _, k := range b.backend.ClearEnv {
		cleared[k] = true
	}

	base := make([]string, 0, len(parent))
	for _, kv := range parent {
		k := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			k = kv[:idx]
		}
		if !cleared[k] {
			base = append(base, kv)
		}
	}

	overlay := map[string]string{}
	for k, v := range b.backend.Env {
		overlay[k] = v
	}

	final := b.family.BuildEnv(params, overlay)

	merged := mergeEnv(base, final)
	return merged
}

// mergeEnv appends later entries on top of earlier ones, later keys
// winning, matching the base runtime's "inherit then merge, later keys
// win" contract.
func mergeEnv(base, overlay []string) []string {
	index := map[string]int{}
	result := append([]string(nil), base...)
	for i, kv := range result {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			index[kv[:idx]] = i
		}
	}
	for _, kv := range overlay {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		k := kv[:idx]
		if pos, ok := index[k]; ok {
			result[pos] = kv
		} else {
			index[k] = len(result)
			result = append(result, kv)
		}
	}
	return result
}

// runState tracks the bookkeeping for one in-flight execution.
type runState struct {
	base   *Base
	cmd    *exec.Cmd
	params agentcore.AgentRuntimeParams
	events chan *agentcore.AgentEvent
	parser parser.Parser

	startTime  time.Time
	watchdogMs int64

	mu         sync.Mutex
	textBuf    strings.Builder
	sessionID  string
	usage      *agentcore.AgentUsage
	resultMeta *parser.ResultMeta
	sequence   uint64

	aborted  boolFlag
	timedOut boolFlag
}

// boolFlag is a tiny mutex-guarded bool safe for concurrent set/read
// from the several goroutines driving one run.
type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (a *boolFlag) set() {
	a.mu.Lock()
	a.v = true
	a.mu.Unlock()
}

func (a *boolFlag) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func (r *runState) emit(ev *agentcore.AgentEvent) {
	r.mu.Lock()
	r.sequence++
	ev.Sequence = r.sequence
	r.mu.Unlock()
	r.events <- ev
}

func (r *runState) drive(ctx context.Context, stdout, stderr io.Reader) {
	defer close(r.events)

	var stderrBuf bytes.Buffer
	var stderrWg sync.WaitGroup
	stderrWg.Add(1)
	go func() {
		defer stderrWg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				stderrBuf.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	var killOnce sync.Once
	kill := func(timedOut bool) {
		killOnce.Do(func() {
			if timedOut {
				r.timedOut.set()
			}
			if r.cmd.Process != nil {
				_ = r.cmd.Process.Kill()
			}
		})
	}

	// stopAll unblocks the watchdog and abort-watcher goroutines once
	// the run is over for any reason, including a plain successful
	// exit that never called kill.
	stopAll := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(stopAll) }) }

	var totalTimer *time.Timer
	if r.params.TimeoutMs > 0 {
		totalTimer = time.AfterFunc(time.Duration(r.params.TimeoutMs)*time.Millisecond, func() {
			kill(true)
		})
		defer totalTimer.Stop()
	}

	watchdogResetCh := make(chan struct{}, 1)
	watchdogDone := make(chan struct{})
	var watchdogFiredMsg string
	go func() {
		defer close(watchdogDone)
		d := time.Duration(r.watchdogMs) * time.Millisecond
		timer := time.NewTimer(d)
		defer timer.Stop()
		for {
			select {
			case <-stopAll:
				return
			case <-watchdogResetCh:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d)
			case <-timer.C:
				watchdogFiredMsg = fmt.Sprintf("No output for %dms (watchdog)", r.watchdogMs)
				kill(true)
				return
			}
		}
	}()

	abortDone := make(chan struct{})
	go func() {
		defer close(abortDone)
		select {
		case <-ctx.Done():
		case <-stopAll:
			return
		}
		r.aborted.set()
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-stopAll:
		case <-time.After(abortGrace):
			kill(false)
		}
	}()

	var lineBuf bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			select {
			case watchdogResetCh <- struct{}{}:
			default:
			}
			lineBuf.Write(buf[:n])
			for {
				line, ok := extractLine(&lineBuf)
				if !ok {
					break
				}
				r.processLine(line)
			}
		}
		if readErr != nil {
			break
		}
	}
	if lineBuf.Len() > 0 {
		r.processLine(lineBuf.String())
	}

	// Wait closes the stderr pipe, so the drain must finish first.
	stderrWg.Wait()
	waitErr := r.cmd.Wait()
	stop()
	<-watchdogDone
	<-abortDone

	r.finish(waitErr, stderrBuf.String(), watchdogFiredMsg)
}

func extractLine(buf *bytes.Buffer) (string, bool) {
	b := buf.Bytes()
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(b[:idx])
	buf.Next(idx + 1)
	return strings.TrimRight(line, "\r"), true
}

func (r *runState) processLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	for _, pl := range r.parser.ParseLine(line) {
		if pl.SessionID != "" {
			r.mu.Lock()
			r.sessionID = pl.SessionID
			r.mu.Unlock()
		}
		if pl.Usage != nil {
			r.mu.Lock()
			r.usage = pl.Usage
			r.mu.Unlock()
		}
		if pl.ResultMeta != nil {
			r.mu.Lock()
			r.resultMeta = pl.ResultMeta
			r.mu.Unlock()
		}
		if pl.Event != nil {
			if pl.Event.Kind == agentcore.EventText {
				r.mu.Lock()
				r.textBuf.WriteString(pl.Event.Text)
				r.mu.Unlock()
			}
			r.emit(pl.Event)
		}
	}
}

func (r *runState) finish(waitErr error, stderr, watchdogMsg string) {
	aborted := r.aborted.get()
	timedOut := r.timedOut.get()

	var errMsg string
	var errCategory agentcore.ErrorCategory
	haveError := false

	switch {
	case aborted:
		errMsg, errCategory, haveError = "Run aborted", agentcore.ErrorAborted, true
	case watchdogMsg != "":
		errMsg, errCategory, haveError = watchdogMsg, agentcore.ErrorTimeout, true
	case timedOut:
		errMsg, errCategory, haveError = fmt.Sprintf("No response within %dms (timeout)", r.params.TimeoutMs), agentcore.ErrorTimeout, true
	default:
		exitCode := exitCodeOf(waitErr)
		if exitCode != 0 {
			haveError = true
			if r.base.family.ClassifyExit != nil {
				if msg, cat, ok := r.base.family.ClassifyExit(exitCode, stderr); ok {
					errMsg, errCategory = msg, cat
					break
				}
			}
			if strings.TrimSpace(stderr) != "" {
				errMsg = strings.TrimSpace(stderr)
			} else {
				errMsg = fmt.Sprintf("Process exited with code %d", exitCode)
			}
			errCategory = classify.Classify(errMsg)
		}
	}

	if haveError {
		r.emit(&agentcore.AgentEvent{Kind: agentcore.EventError, Message: errMsg, Category: errCategory})
	}

	exitCategory := "success"
	if haveError {
		exitCategory = string(errCategory)
	}
	r.base.backend.Metrics.ObserveExit(r.base.family.Command, exitCategory, time.Since(r.startTime).Seconds())

	r.mu.Lock()
	text := r.textBuf.String()
	sessionID := r.sessionID
	usage := r.usage
	resultMeta := r.resultMeta
	r.mu.Unlock()

	result := &agentcore.AgentRunResult{
		Text:       text,
		SessionID:  sessionID,
		DurationMs: time.Since(r.startTime).Milliseconds(),
		Usage:      usage,
		Aborted:    aborted || timedOut,
	}
	if resultMeta != nil {
		result.TotalCostUsd = resultMeta.TotalCostUsd
		result.ApiDurationMs = resultMeta.ApiDurationMs
		result.NumTurns = resultMeta.NumTurns
		result.StopReason = resultMeta.StopReason
		result.ErrorSubtype = resultMeta.ErrorSubtype
		result.PermissionDenials = resultMeta.PermissionDenials
	}

	r.emit(&agentcore.AgentEvent{Kind: agentcore.EventDone, Result: result})
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
