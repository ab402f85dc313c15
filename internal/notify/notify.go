// Package notify delivers validated signals to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signal-lab/internal/domain"
	"signal-lab/internal/observability"
)

// ErrInvalidSignal is returned by Guard for signals that fail validation.
var ErrInvalidSignal = domain.ErrInvalidSignal

// Notifier delivers a signal to one channel.
type Notifier interface {
	Notify(ctx context.Context, sig *domain.Signal) error
	Name() string
}

// Guard validates every signal before forwarding it. Invalid signals are
// rejected with ErrInvalidSignal and never reach the wrapped notifier.
type Guard struct {
	next   Notifier
	logger *log.Logger
}

// NewGuard wraps next.
func NewGuard(next Notifier, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{next: next, logger: logger}
}

// Notify validates sig and forwards it.
func (g *Guard) Notify(ctx context.Context, sig *domain.Signal) error {
	if err := sig.Validate(); err != nil {
		g.logger.Printf("[notify] rejected signal: %v", err)
		observability.RecordNotification(g.next.Name(), err)
		return err
	}

	err := g.next.Notify(ctx, sig)
	observability.RecordNotification(g.next.Name(), err)
	if err != nil {
		return fmt.Errorf("%s: %w", g.next.Name(), err)
	}
	return nil
}

// Name returns the wrapped notifier's name.
func (g *Guard) Name() string {
	return g.next.Name()
}

// LogNotifier writes signals to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs a one-line summary of sig.
func (n *LogNotifier) Notify(_ context.Context, sig *domain.Signal) error {
	n.logger.Printf("[signal] %s", FormatSignalLine(sig))
	return nil
}

// Name returns "log".
func (n *LogNotifier) Name() string {
	return "log"
}

// Multi fans a signal out to every notifier. All notifiers are attempted.
type Multi []Notifier

// Notify delivers sig to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, sig *domain.Signal) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name returns "multi".
func (m Multi) Name() string {
	return "multi"
}

var (
	_ Notifier = (*Guard)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
