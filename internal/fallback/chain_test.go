package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/yoockh/rehearse/internal/logger"
)

func constant(name, out string, err error, calls *[]string) Strategy[string, string] {
	return Strategy[string, string]{
		Name: name,
		Run: func(ctx context.Context, in string) (string, error) {
			*calls = append(*calls, name)
			return out, err
		},
	}
}

func TestChainFirstSuccessWins(t *testing.T) {
	var calls []string
	c := New("test", logger.Discard(),
		constant("primary", "", errors.New("boom"), &calls),
		constant("secondary", "ok", nil, &calls),
		constant("tertiary", "never", nil, &calls),
	)

	out, name, err := c.Run(context.Background(), "in")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "ok" || name != "secondary" {
		t.Fatalf("Run() = %q via %q, want ok via secondary", out, name)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want primary then secondary only", calls)
	}
}

func TestChainSkipsUnavailable(t *testing.T) {
	var calls []string
	down := constant("down", "x", nil, &calls)
	down.Available = func(context.Context) bool { return false }

	var observed []string
	c := New("test", logger.Discard(), down, constant("up", "y", nil, &calls)).
		Observe(func(_ context.Context, stage, strategy string, ok bool, err error) {
			if ok {
				observed = append(observed, strategy)
			}
		})

	out, name, err := c.Run(context.Background(), "")
	if err != nil || out != "y" || name != "up" {
		t.Fatalf("Run() = %q, %q, %v", out, name, err)
	}
	if len(calls) != 1 || calls[0] != "up" {
		t.Fatalf("unavailable strategy was called: %v", calls)
	}
	if len(observed) != 1 || observed[0] != "up" {
		t.Fatalf("observer saw %v", observed)
	}
}

func TestChainExhausted(t *testing.T) {
	var calls []string
	cause := errors.New("last failure")
	c := New("test", logger.Discard(),
		constant("a", "", errors.New("first failure"), &calls),
		constant("b", "", cause, &calls),
	)
	_, _, err := c.Run(context.Background(), "")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want it to wrap the last failure", err)
	}

	empty := New[string, string]("empty", logger.Discard())
	if _, _, err := empty.Run(context.Background(), ""); !errors.Is(err, ErrExhausted) {
		t.Fatalf("empty chain err = %v", err)
	}
}

func TestChainRunsWithCancelledContext(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New("test", logger.Discard(), constant("local", "done", nil, &calls))
	out, _, err := c.Run(ctx, "")
	if err != nil || out != "done" {
		t.Fatalf("local strategy should still run after cancellation: %q, %v", out, err)
	}
}
