package ensemble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/stats"
)

// Sentinels stored in place of real output when an invocation fails.
const (
	RawBackoff = "<BACKOFF>"
	RawTimeout = "<TIMEOUT>"
	RawEmpty   = "<EMPTY>"
	RawError   = "<ERROR>"
)

const (
	ringSize    = 6
	rawMaxChars = 2000
)

// rawRing is a bounded ring of the latest raw outputs for one model.
type rawRing struct {
	mu   sync.Mutex
	buf  []string
	next int
}

func (r *rawRing) push(s string) {
	if len(s) > rawMaxChars {
		s = s[:rawMaxChars]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < ringSize {
		r.buf = append(r.buf, s)
		return
	}
	r.buf[r.next] = s
	r.next = (r.next + 1) % ringSize
}

func (r *rawRing) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return ""
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx]
}

// Runner invokes a single model with a deadline, normalises the output,
// applies per-model backoff after failures and records the result in
// the stats store.
type Runner struct {
	stats   *stats.Store
	timeout time.Duration
	backoff time.Duration

	mu           sync.Mutex
	rings        map[string]*rawRing
	backoffUntil map[string]time.Time
}

func NewRunner(st *stats.Store, callTimeout, backoff time.Duration) *Runner {
	return &Runner{
		stats:        st,
		timeout:      callTimeout,
		backoff:      backoff,
		rings:        map[string]*rawRing{},
		backoffUntil: map[string]time.Time{},
	}
}

func (r *Runner) ring(modelID string) *rawRing {
	r.mu.Lock()
	defer r.mu.Unlock()
	rg, ok := r.rings[modelID]
	if !ok {
		rg = &rawRing{}
		r.rings[modelID] = rg
	}
	return rg
}

func (r *Runner) inBackoff(modelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().Before(r.backoffUntil[modelID])
}

func (r *Runner) applyBackoff(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffUntil[modelID] = time.Now().Add(r.backoff)
}

// LastRaw returns the most recent raw output for a model (debugging).
func (r *Runner) LastRaw(modelID string) string {
	return r.ring(modelID).last()
}

// Run invokes the model and returns (raw, ok). On any failure ok is
// false and raw carries a sentinel. Never returns an error: failure
// classification is the sentinel.
func (r *Runner) Run(ctx context.Context, model interfaces.Generator, prompt string) (string, bool) {
	modelID := model.ID()
	r.stats.Ensure(modelID)

	if r.inBackoff(modelID) {
		logger.Debug(ctx, "Model in backoff window, skipping", "model", modelID)
		return RawBackoff, false
	}

	raw, err := r.invoke(ctx, model, prompt)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errEmptyOutput
	}
	if err != nil {
		// one reduced-resource retry for CLI-backed models
		if red, ok := model.(interfaces.Reducible); ok {
			logger.Warn(ctx, "Model failed, retrying with reduced resources", "model", modelID, "error", err)
			raw, err = r.invoke(ctx, red.Reduced(), prompt)
			if err == nil && strings.TrimSpace(raw) == "" {
				err = errEmptyOutput
			}
		}
	}

	if err != nil {
		sentinel := RawError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			sentinel = RawTimeout
		case errors.Is(err, errEmptyOutput):
			sentinel = RawEmpty
		}
		r.ring(modelID).push(sentinel)
		r.applyBackoff(modelID)
		r.stats.Update(modelID, false)
		logger.Warn(ctx, "Model invocation failed", "model", modelID, "sentinel", sentinel, "error", err)
		return sentinel, false
	}

	r.ring(modelID).push(raw)
	r.stats.Update(modelID, true)
	return raw, true
}

var errEmptyOutput = errors.New("empty model output")

// invoke tries the adapter call conventions in a fixed order under one
// deadline: Generate first, then chat-style messages.
func (r *Runner) invoke(ctx context.Context, model interfaces.Generator, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := model.Generate(cctx, prompt)
		if err != nil {
			if chat, ok := model.(interfaces.ChatModel); ok {
				out, err = chat.Chat(cctx, []interfaces.ChatMessage{{Role: "user", Content: prompt}})
			}
		}
		ch <- result{out, err}
	}()

	select {
	case res := <-ch:
		return res.out, res.err
	case <-cctx.Done():
		// abandoned, never awaited
		return "", cctx.Err()
	}
}
