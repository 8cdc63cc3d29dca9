package lease

import (
	"context"

	"frontier/internal/frontier"
	"frontier/internal/logging"
)

// Outcome is the terminal result of processing an item.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

func (o Outcome) status() frontier.Status {
	if o == Success {
		return frontier.StatusCompleted
	}
	return frontier.StatusFailed
}

// Output describes where a successful fetch stored its content.
type Output struct {
	Path  string
	Bytes int64
}

// Result is what a worker reports after processing an item.
type Result struct {
	Identifier string
	Success    bool
	Output     *Output
	Reason     string
}

// Succeeded builds a successful Result.
func Succeeded(identifier string, output *Output) Result {
	return Result{Identifier: identifier, Success: true, Output: output}
}

// Failed builds a failed Result.
func Failed(identifier, reason string) Result {
	return Result{Identifier: identifier, Reason: reason}
}

// Outcome maps the result onto Success or Failure.
func (r Result) Outcome() Outcome {
	if r.Success {
		return Success
	}
	return Failure
}

// Complete marks identifier completed or failed and clears its claim.
// Terminal items are left untouched. The caller is trusted to own the claim.
func (m *Manager) Complete(ctx context.Context, identifier string, outcome Outcome) error {
	return m.ReportOutcome(ctx, Result{Identifier: identifier, Success: outcome == Success})
}

// ReportOutcome records a worker's result, persisting the output descriptor
// on success and the reason on failure.
func (m *Manager) ReportOutcome(ctx context.Context, result Result) error {
	completion := frontier.Completion{Status: result.Outcome().status()}
	if result.Success {
		if result.Output != nil {
			completion.OutputPath = result.Output.Path
			completion.OutputBytes = result.Output.Bytes
		}
	} else {
		completion.Reason = result.Reason
	}

	moved, err := m.complete(ctx, result.Identifier, completion)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	m.metrics.ObserveOutcome(result.Outcome().String())
	if result.Success {
		m.logger.Debug("item completed", logging.Identifier(result.Identifier))
	} else {
		m.logger.Info("item failed",
			logging.Identifier(result.Identifier),
			logging.String("reason", result.Reason),
		)
	}
	return nil
}

func (m *Manager) complete(ctx context.Context, identifier string, completion frontier.Completion) (bool, error) {
	if identifier == "" {
		return false, ErrEmptyIdentifier
	}
	var moved bool
	err := m.store.Update(ctx, func(tx *frontier.Tx) error {
		if _, err := tx.InsertItem(ctx, identifier, frontier.ItemMeta{}); err != nil {
			return err
		}
		var err error
		moved, err = tx.Finish(ctx, identifier, completion)
		return err
	})
	return moved, err
}

// Requeue moves failed items back to pending so they can be claimed again.
// With no identifiers, every failed item is requeued.
func (m *Manager) Requeue(ctx context.Context, identifiers ...string) (int64, error) {
	var moved int64
	err := m.store.Update(ctx, func(tx *frontier.Tx) error {
		var err error
		moved, err = tx.RequeueFailed(ctx, identifiers...)
		return err
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		m.logger.Info("failed items requeued", logging.Int64("count", moved))
	}
	return moved, nil
}
