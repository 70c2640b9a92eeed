package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"fvgTrader/internal/adapters/membus"
	"fvgTrader/internal/domain"
	"fvgTrader/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, msg)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errs)
}

// memStore is an in-memory store with the same guarded transitions as the
// SQL store.
type memStore struct {
	mu sync.Mutex

	candles map[string][]domain.Candle // symbol|timeframe -> by time
	gaps    map[int64]*domain.FairValueGap
	savedPools []domain.LiquidityPool
	untapped   []*domain.LiquidityPool
	tapped     map[int64]time.Time
	signals    map[int64]*domain.TradeSignal
	positions  map[string]*domain.Position
	journal    map[string]domain.JournalEntry
	nextID     int64

	announcedSignals map[int64]bool
	announcedCloses  map[string]bool

	expireCutoff  time.Time
	saveCandleErr error
	getSignalErr  error
	transitionErr error
	journalErr    error
}

func newMemStore() *memStore {
	return &memStore{
		candles:   make(map[string][]domain.Candle),
		gaps:      make(map[int64]*domain.FairValueGap),
		tapped:    make(map[int64]time.Time),
		signals:   make(map[int64]*domain.TradeSignal),
		positions: make(map[string]*domain.Position),
		journal:   make(map[string]domain.JournalEntry),

		announcedSignals: make(map[int64]bool),
		announcedCloses:  make(map[string]bool),
	}
}

var (
	_ ports.CandleStore    = (*memStore)(nil)
	_ ports.LifecycleStore = (*memStore)(nil)
	_ ports.JournalSink    = (*memStore)(nil)
	_ ports.JournalReader  = (*memStore)(nil)
)

func seriesKey(symbol, timeframe string) string { return symbol + "|" + timeframe }

func (s *memStore) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveCandleErr != nil {
		return 0, s.saveCandleErr
	}
	inserted := 0
	for _, c := range candles {
		key := seriesKey(c.Symbol, c.Timeframe)
		dup := false
		for _, have := range s.candles[key] {
			if have.Timestamp.Equal(c.Timestamp) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.candles[key] = append(s.candles[key], c)
		inserted++
	}
	for key := range s.candles {
		series := s.candles[key]
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	}
	return inserted, nil
}

func (s *memStore) CandlesSince(ctx context.Context, symbol, timeframe string, since time.Time) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Candle
	for _, c := range s.candles[seriesKey(symbol, timeframe)] {
		if !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) LatestCandleTime(ctx context.Context, symbol, timeframe string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.candles[seriesKey(symbol, timeframe)]
	if len(series) == 0 {
		return time.Time{}, false, nil
	}
	return series[len(series)-1].Timestamp, true, nil
}

func (s *memStore) LatestClose(ctx context.Context, symbol string) (float64, time.Time, error) {
	return 0, time.Time{}, ports.ErrNotFound
}

func (s *memStore) addGap(gap domain.FairValueGap) *domain.FairValueGap {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	gap.ID = s.nextID
	gap.Status = domain.FVGPending
	s.gaps[gap.ID] = &gap
	return &gap
}

func (s *memStore) SaveFVG(ctx context.Context, fvg *domain.FairValueGap) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.gaps {
		if g.Symbol == fvg.Symbol && g.Timeframe == fvg.Timeframe && g.FormedAt.Equal(fvg.FormedAt) && g.Direction == fvg.Direction {
			return id, false, nil
		}
	}
	s.nextID++
	cp := *fvg
	cp.ID = s.nextID
	cp.Status = domain.FVGPending
	s.gaps[cp.ID] = &cp
	return cp.ID, true, nil
}

func (s *memStore) PendingFVGs(ctx context.Context, symbol, timeframe string) ([]*domain.FairValueGap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.FairValueGap
	for _, g := range s.gaps {
		if g.Symbol == symbol && g.Timeframe == timeframe && g.Status == domain.FVGPending {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ExpireFVGs(ctx context.Context, formedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireCutoff = formedBefore
	var n int64
	for _, g := range s.gaps {
		if g.Status == domain.FVGPending && g.FormedAt.Before(formedBefore) {
			g.Status = domain.FVGExpired
			n++
		}
	}
	return n, nil
}

func (s *memStore) gap(id int64) domain.FairValueGap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.gaps[id]
}

func (s *memStore) SaveLiquidityPool(ctx context.Context, pool *domain.LiquidityPool, tolerance float64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.savedPools = append(s.savedPools, *pool)
	return s.nextID, true, nil
}

// UntappedPools returns the pools seeded in untapped, not the saved ones, so
// tests control the targets the validator sees.
func (s *memStore) UntappedPools(ctx context.Context, symbol, timeframe string) ([]*domain.LiquidityPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.LiquidityPool
	for _, p := range s.untapped {
		if _, done := s.tapped[p.ID]; !done {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) MarkPoolTapped(ctx context.Context, id int64, tapTime time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.tapped[id]; done {
		return false, nil
	}
	s.tapped[id] = tapTime
	return true, nil
}

func (s *memStore) RecordSignal(ctx context.Context, fvgID int64, inversionTime time.Time, conf domain.Confirmation, sig *domain.TradeSignal) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gaps[fvgID]
	if !ok || g.Status != domain.FVGPending {
		return 0, false, nil
	}
	g.Status = domain.FVGFilled
	g.InversionTime = inversionTime
	c := conf
	g.Confirmation = &c

	s.nextID++
	cp := *sig
	cp.ID = s.nextID
	cp.FVGID = fvgID
	cp.Status = domain.SignalPending
	s.signals[cp.ID] = &cp
	return cp.ID, true, nil
}

func (s *memStore) addSignal(sig domain.TradeSignal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sig.ID = s.nextID
	s.signals[sig.ID] = &sig
	return sig.ID
}

func (s *memStore) GetSignal(ctx context.Context, id int64) (*domain.TradeSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getSignalErr != nil {
		return nil, s.getSignalErr
	}
	sig, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	cp := *sig
	return &cp, nil
}

func (s *memStore) TransitionSignal(ctx context.Context, id int64, from, to domain.SignalStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil && to != domain.FailedPortfolio {
		return false, s.transitionErr
	}
	sig, ok := s.signals[id]
	if !ok || sig.Status != from {
		return false, nil
	}
	sig.Status = to
	return true, nil
}

func (s *memStore) UnannouncedSignals(ctx context.Context, ticker, timeframe string) ([]*domain.TradeSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TradeSignal
	for id, sig := range s.signals {
		if sig.Ticker == ticker && sig.Timeframe == timeframe && sig.Status == domain.SignalPending && !s.announcedSignals[id] {
			cp := *sig
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) MarkSignalAnnounced(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announcedSignals[id] {
		return false, nil
	}
	s.announcedSignals[id] = true
	return true, nil
}

func (s *memStore) signalStatus(id int64) domain.SignalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals[id].Status
}

func (s *memStore) OpenPosition(ctx context.Context, pos *domain.Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ExecutionID]; ok {
		return false, nil
	}
	for _, p := range s.positions {
		if p.SignalID == pos.SignalID {
			return false, nil
		}
	}
	cp := *pos
	s.positions[pos.ExecutionID] = &cp
	return true, nil
}

func (s *memStore) GetPosition(ctx context.Context, executionID string) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[executionID]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (s *memStore) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Position
	for _, p := range s.positions {
		if p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionID < out[j].ExecutionID })
	return out, nil
}

func (s *memStore) ClosePosition(ctx context.Context, executionID string, exitPrice, pnl float64, reason domain.CloseReason, closedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[executionID]
	if !ok || !p.IsOpen() {
		return false, nil
	}
	p.Status = domain.StatusClosed
	p.ExitPrice, p.PnL, p.CloseReason, p.ClosedAt = exitPrice, pnl, reason, closedAt
	return true, nil
}

func (s *memStore) UnannouncedCloses(ctx context.Context) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Position
	for id, p := range s.positions {
		if p.Status == domain.StatusClosed && !s.announcedCloses[id] {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionID < out[j].ExecutionID })
	return out, nil
}

func (s *memStore) MarkCloseAnnounced(ctx context.Context, executionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announcedCloses[executionID] {
		return false, nil
	}
	s.announcedCloses[executionID] = true
	return true, nil
}

func (s *memStore) Archive(ctx context.Context, entry domain.JournalEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalErr != nil {
		return false, s.journalErr
	}
	if _, ok := s.journal[entry.ExecutionID]; ok {
		return false, nil
	}
	s.journal[entry.ExecutionID] = entry
	return true, nil
}

func (s *memStore) ClosedTrades(ctx context.Context, since time.Time) ([]domain.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalErr != nil {
		return nil, s.journalErr
	}
	var out []domain.JournalEntry
	for _, e := range s.journal {
		if !e.ClosedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	return out, nil
}

// fakeSource serves canned candles or errors per symbol|timeframe.
type fakeSource struct {
	mu      sync.Mutex
	candles map[string][]domain.Candle
	errs    map[string]error
	calls   map[string]int
	starts  map[string]time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		candles: make(map[string][]domain.Candle),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		starts:  make(map[string]time.Time),
	}
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := seriesKey(symbol, timeframe)
	f.calls[key]++
	f.starts[key] = start
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	var out []domain.Candle
	for _, c := range f.candles[key] {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeUniverse struct {
	symbols []string
	err     error
}

func (f *fakeUniverse) ListSymbols(ctx context.Context) ([]string, error) {
	return f.symbols, f.err
}

// fakeFilter keeps the symbols listed in keep.
type fakeFilter struct {
	keep map[string]bool
	seen []string
}

func (f *fakeFilter) Filter(ctx context.Context, symbols []string) ([]string, error) {
	f.seen = append([]string(nil), symbols...)
	var out []string
	for _, s := range symbols {
		if f.keep[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeExecutor struct {
	fill   domain.Fill
	err    error
	orders []domain.Order
}

func (f *fakeExecutor) Execute(ctx context.Context, order domain.Order) (domain.Fill, error) {
	f.orders = append(f.orders, order)
	return f.fill, f.err
}

var errPublish = errors.New("bus down")

// flakyBus is a membus that fails the next failures publishes.
type flakyBus struct {
	*membus.Bus
	mu       sync.Mutex
	failures int
}

func (b *flakyBus) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return "", errPublish
	}
	b.mu.Unlock()
	return b.Bus.Publish(ctx, stream, fields)
}

// failingBus is a membus whose publishes always fail.
type failingBus struct {
	*membus.Bus
}

func (b failingBus) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	return "", errPublish
}
