package llamacli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"mt5-ensemble-bot/internal/interfaces"
)

// Adapter shells out to a llama.cpp style CLI binary. On failure the
// runner retries once through Reduced(), which halves the thread count
// and shrinks the predict budget.
type Adapter struct {
	id        string
	binary    string
	modelPath string
	threads   int
	predict   int
	temp      float64
}

var _ interfaces.Generator = (*Adapter)(nil)
var _ interfaces.Reducible = (*Adapter)(nil)

func New(id, binary, modelPath string, threads, predict int, temp float64) *Adapter {
	if threads <= 0 {
		threads = 4
	}
	if predict <= 0 {
		predict = 256
	}
	return &Adapter{id: id, binary: binary, modelPath: modelPath, threads: threads, predict: predict, temp: temp}
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) Reduced() interfaces.Generator {
	threads := a.threads / 2
	if threads < 1 {
		threads = 1
	}
	predict := a.predict / 2
	if predict < 64 {
		predict = 64
	}
	return &Adapter{id: a.id, binary: a.binary, modelPath: a.modelPath, threads: threads, predict: predict, temp: a.temp}
}

func (a *Adapter) Generate(ctx context.Context, prompt string) (string, error) {
	args := []string{
		"-m", a.modelPath,
		"-t", strconv.Itoa(a.threads),
		"-n", strconv.Itoa(a.predict),
		"--temp", strconv.FormatFloat(a.temp, 'f', -1, 64),
		"--no-display-prompt",
		"-p", prompt,
	}
	cmd := exec.CommandContext(ctx, a.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s exited: %w (%s)", a.binary, err, truncate(stderr.String(), 200))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
