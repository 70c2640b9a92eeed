package app

import (
	"context"
	"fmt"
	"time"

	"fvgTrader/internal/domain"
	"fvgTrader/internal/message"
	"fvgTrader/internal/ports"
	"fvgTrader/internal/stage"
)

// Journal archives closed positions.
type Journal struct {
	positions ports.PositionStore
	sink      ports.JournalSink
	bus       ports.EventBus
	logger    ports.Logger
	now       func() time.Time
}

// NewJournal creates the journal stage.
func NewJournal(positions ports.PositionStore, sink ports.JournalSink, bus ports.EventBus, logger ports.Logger) (*Journal, error) {
	if positions == nil || sink == nil || bus == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Journal")
	}
	return &Journal{positions: positions, sink: sink, bus: bus, logger: logger, now: utcNow}, nil
}

// Register subscribes the stage to position closes.
func (j *Journal) Register(r *stage.Runner) {
	r.Handle(message.StreamPositionsClosed, j.HandlePositionClosed)
}

// Run blocks until ctx is done; the journal has no periodic work.
func (j *Journal) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// HandlePositionClosed archives the stored position and announces it. The
// announcement is repeated on redelivery; archiving is not.
func (j *Journal) HandlePositionClosed(ctx context.Context, msg message.Message) error {
	m, ok := msg.(message.PositionClosed)
	if !ok {
		return unexpected(msg, message.TypePositionClosed)
	}
	pos, err := j.positions.GetPosition(ctx, m.ExecutionID)
	if err != nil {
		return fmt.Errorf("load position %s: %w", m.ExecutionID, err)
	}
	if pos == nil {
		return &message.ValidationError{Type: m.Type(), Field: "execution_id", Reason: "no such position"}
	}
	if pos.Status != domain.StatusClosed {
		return &message.ValidationError{Type: m.Type(), Field: "execution_id", Reason: "position is not closed"}
	}

	archivedAt := j.now()
	created, err := j.sink.Archive(ctx, domain.JournalEntryFrom(pos, archivedAt))
	if err != nil {
		return fmt.Errorf("archive %s: %w", m.ExecutionID, err)
	}

	out := message.PositionArchived{ExecutionID: pos.ExecutionID, Symbol: pos.Symbol, PnL: pos.PnL, ArchivedAt: archivedAt}
	if _, err := message.Publish(ctx, j.bus, out); err != nil {
		return fmt.Errorf("announce archive of %s: %w", m.ExecutionID, err)
	}
	j.logger.Info(ctx, "Journal: position archived", map[string]interface{}{
		"executionID": pos.ExecutionID, "symbol": pos.Symbol, "pnl": pos.PnL, "reason": pos.CloseReason, "new": created,
	})
	return nil
}
