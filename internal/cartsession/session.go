package cartsession

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

const (
	DefaultDebounceWindow = time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Session keeps an optimistic view of one cart and reconciles it with the
// store. Quantity edits are applied locally at once and written after a quiet
// period; the last edit per line wins.
type Session struct {
	store     Store
	scheduler Scheduler
	window    time.Duration
	timeout   time.Duration
	calc      *vat.Calculator
	logger    *logrus.Entry
	onError   func(error)
	onChange  func(Summary)

	clock   atomic.Int64
	refresh singleflight.Group

	mu          sync.Mutex
	state       State
	lines       []CartLine // optimistic projection
	confirmed   []CartLine // last state the store agreed with
	pending     map[string]PendingMutation
	timer       Timer
	timerSeq    uint64 // bumped whenever the timer is stopped; stale callbacks compare it
	flushDone   chan struct{}
	generation  uint64 // bumped by every refresh; stale flush results are dropped
	destination *Destination
	closed      bool
}

// Option configures a Session
type Option func(*Session)

// WithConfig applies the cart section of the application config
func WithConfig(cfg config.CartConfig) Option {
	return func(s *Session) {
		if cfg.DebounceWindow > 0 {
			s.window = cfg.DebounceWindow
		}
		if cfg.RequestTimeout > 0 {
			s.timeout = cfg.RequestTimeout
		}
	}
}

func WithDebounceWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

func WithScheduler(sch Scheduler) Option {
	return func(s *Session) { s.scheduler = sch }
}

// WithCalculator enables VAT figures in Summary
func WithCalculator(c *vat.Calculator) Option {
	return func(s *Session) { s.calc = c }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) { s.logger = logger.WithField("component", "cartsession") }
}

// WithErrorHandler receives errors from flushes started by the debounce
// timer, which have no caller to return to.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithChangeHandler is called after every confirmed change to the snapshot
func WithChangeHandler(fn func(Summary)) Option {
	return func(s *Session) { s.onChange = fn }
}

// New creates a session over store. Call Refresh to load the cart.
func New(store Store, opts ...Option) *Session {
	s := &Session{
		store:     store,
		scheduler: realScheduler{},
		window:    DefaultDebounceWindow,
		timeout:   DefaultRequestTimeout,
		logger:    logrus.StandardLogger().WithField("component", "cartsession"),
		state:     Clean,
		pending:   make(map[string]PendingMutation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current optimistic cart
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewSnapshot(s.lines)
}

// State returns the current reconciliation state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the unflushed edits ordered by issue time
func (s *Session) Pending() []PendingMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// SetDestination sets the address used for the VAT figures in Summary. A nil
// destination hides them.
func (s *Session) SetDestination(d *Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == nil {
		s.destination = nil
		return
	}
	cp := *d
	s.destination = &cp
}

// Summary returns the snapshot with VAT applied for the current destination
func (s *Session) Summary() Summary {
	s.mu.Lock()
	snap := NewSnapshot(s.lines)
	state := s.state
	var dest *Destination
	if s.destination != nil {
		cp := *s.destination
		dest = &cp
	}
	s.mu.Unlock()

	summary := Summary{Snapshot: snap, State: state}
	if s.calc == nil || dest == nil || dest.CountryCode == "" {
		return summary
	}
	res, err := s.calc.Calculate(vat.Input{
		AmountMinorUnits:         snap.SubtotalMinorUnits,
		ShippingAmountMinorUnits: dest.ShippingAmountMinorUnits,
		CountryCode:              dest.CountryCode,
		CustomerType:             dest.CustomerType,
		BusinessVATNumber:        dest.BusinessVATNumber,
	})
	if err != nil {
		s.logger.WithError(err).Warn("VAT calculation failed")
		return summary
	}
	summary.Vat = &res
	return summary
}

// AddLine adds quantity of a product. A product already in the cart is
// merged into its line through the debounced path; a new product costs one
// store round trip since the line id is assigned by the store.
func (s *Session) AddLine(ctx context.Context, productID string, quantity int) (CartLine, error) {
	if productID == "" {
		return CartLine{}, &ValidationError{Field: "product_id", Message: "is required"}
	}
	if quantity < 1 {
		return CartLine{}, &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return CartLine{}, ErrSessionClosed
	}
	if i := indexOfProduct(s.lines, productID); i >= 0 {
		line := s.lines[i]
		s.mu.Unlock()
		line.Quantity += quantity
		if err := s.SetQuantity(ctx, line.ID, line.Quantity); err != nil {
			return CartLine{}, err
		}
		return line, nil
	}
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	line, err := s.store.AddLine(callCtx, productID, quantity)
	if err != nil {
		return CartLine{}, classify("add line", err)
	}

	s.mu.Lock()
	s.lines = upsertLine(s.lines, line)
	s.confirmed = upsertLine(s.confirmed, line)
	delete(s.pending, line.ID)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"line_id": line.ID, "product_id": productID}).Debug("Line added")
	s.notify()
	return line, nil
}

// SetQuantity records an optimistic quantity for a line and (re)starts the
// debounce window. Zero removes the line immediately.
func (s *Session) SetQuantity(ctx context.Context, lineID string, quantity int) error {
	if lineID == "" {
		return &ValidationError{Field: "line_id", Message: "is required"}
	}
	if quantity < 0 {
		return &ValidationError{Field: "quantity", Message: "must not be negative"}
	}
	if quantity == 0 {
		return s.RemoveLine(ctx, lineID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	i := indexOfLine(s.lines, lineID)
	if i < 0 {
		return &NotFoundError{LineID: lineID}
	}
	s.lines[i].Quantity = quantity
	s.pending[lineID] = PendingMutation{
		LineID:         lineID,
		TargetQuantity: quantity,
		IssuedAt:       s.clock.Add(1),
	}
	s.fireLocked(evMutate)
	s.resetTimerLocked()
	return nil
}

// RemoveLine removes a line optimistically and deletes it from the store
// right away. On failure the captured prior snapshot is restored.
func (s *Session) RemoveLine(ctx context.Context, lineID string) error {
	if lineID == "" {
		return &ValidationError{Field: "line_id", Message: "is required"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	i := indexOfLine(s.lines, lineID)
	if i < 0 {
		s.mu.Unlock()
		return &NotFoundError{LineID: lineID}
	}
	prior := cloneLines(s.lines)
	priorPending, hadPending := s.pending[lineID]
	s.lines = removeLineAt(s.lines, i)
	if hadPending {
		delete(s.pending, lineID)
		if len(s.pending) == 0 {
			s.stopTimerLocked()
			s.fireLocked(evPendingClear)
		}
	}
	gen := s.generation
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.store.DeleteLine(callCtx, lineID)
	cancel()

	if err != nil && IsNotFound(err) {
		// already gone upstream; re-read to pick up whatever else changed
		s.logger.WithField("line_id", lineID).Info("Line already removed, refreshing")
		if rerr := s.Refresh(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.WithError(rerr).Warn("Refresh after missing line failed")
		}
		return nil
	}

	s.mu.Lock()
	if gen != s.generation {
		// a refresh replaced the snapshot while the delete was in flight
		s.mu.Unlock()
		return classify("remove line", err)
	}
	if err != nil {
		s.restoreLocked(prior)
		if hadPending {
			if _, newer := s.pending[lineID]; !newer {
				s.pending[lineID] = priorPending
			}
			s.fireLocked(evMutate)
			s.resetTimerLocked()
		}
		s.applyPendingLocked()
		s.mu.Unlock()
		s.logger.WithError(err).WithField("line_id", lineID).Warn("Remove failed, restored prior cart")
		return classify("remove line", err)
	}
	if j := indexOfLine(s.confirmed, lineID); j >= 0 {
		s.confirmed = removeLineAt(s.confirmed, j)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Flush writes pending edits now instead of waiting for the debounce window.
// If a flush is already in flight it waits for it first.
func (s *Session) Flush(ctx context.Context) error {
	return s.flush(ctx, 0)
}

// flush writes the pending batch. A non-zero timerSeq names the debounce timer
// that asked for it; the call does nothing once that timer was superseded.
func (s *Session) flush(ctx context.Context, timerSeq uint64) error {
	s.mu.Lock()
	for s.state == Flushing && s.flushDone != nil {
		done := s.flushDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.closed || s.state != Dirty || len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	if timerSeq != 0 && timerSeq != s.timerSeq {
		s.mu.Unlock()
		return nil
	}

	s.stopTimerLocked()
	batch := s.pendingLocked()
	s.pending = make(map[string]PendingMutation)
	gen := s.generation
	done := make(chan struct{})
	s.flushDone = done
	s.fireLocked(evFlushStart)
	s.mu.Unlock()

	results, err := s.write(ctx, batch)

	s.mu.Lock()
	close(done)
	if s.flushDone == done {
		s.flushDone = nil
	}
	if gen != s.generation {
		s.mu.Unlock()
		return classify("flush", err)
	}
	if err != nil {
		// fall back to the last confirmed state; newer edits go with it
		s.lines = cloneLines(s.confirmed)
		s.pending = make(map[string]PendingMutation)
		s.stopTimerLocked()
		s.fireLocked(evFlushFailed)
		s.mu.Unlock()

		err = classify("flush", err)
		s.logger.WithError(err).WithField("mutations", len(batch)).Warn("Flush failed, rolled back")
		if rerr := s.reconcile(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.WithError(rerr).Warn("Refresh after failed flush failed")
		}
		return err
	}

	s.applyConfirmedLocked(batch, results)
	s.fireLocked(evFlushSucceeded)
	if len(s.pending) > 0 {
		s.fireLocked(evMutate)
		s.resetTimerLocked()
	}
	s.mu.Unlock()

	s.logger.WithField("mutations", len(batch)).Debug("Flushed cart edits")
	s.notify()
	return nil
}

// write sends one batch. Results map line id to the stored line; a nil entry
// means the store deleted the line and a missing entry means it accepted the
// requested quantity without echoing the line.
func (s *Session) write(ctx context.Context, batch []PendingMutation) (map[string]*CartLine, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(map[string]*CartLine, len(batch))
	if bs, ok := s.store.(BatchStore); ok && len(batch) > 1 {
		updates := make([]QuantityUpdate, len(batch))
		for i, m := range batch {
			updates[i] = QuantityUpdate{LineID: m.LineID, Quantity: m.TargetQuantity}
		}
		lines, err := bs.SetQuantities(ctx, updates)
		if err != nil {
			return nil, err
		}
		for i := range lines {
			line := lines[i]
			results[line.ID] = &line
		}
		return results, nil
	}

	stored := make([]*CartLine, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range batch {
		g.Go(func() error {
			line, err := s.store.SetQuantity(gctx, m.LineID, m.TargetQuantity)
			if err != nil {
				return err
			}
			stored[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, m := range batch {
		results[m.LineID] = stored[i]
	}
	return results, nil
}

// applyConfirmedLocked folds a successful write into both views. The store's
// line wins unless the user has edited the line again since the batch left.
func (s *Session) applyConfirmedLocked(batch []PendingMutation, results map[string]*CartLine) {
	for _, m := range batch {
		var (
			line    CartLine
			deleted bool
		)
		stored, echoed := results[m.LineID]
		switch {
		case echoed && stored == nil:
			deleted = true
		case echoed:
			line = *stored
		default:
			if j := indexOfLine(s.confirmed, m.LineID); j >= 0 {
				line = s.confirmed[j]
			} else if k := indexOfLine(s.lines, m.LineID); k >= 0 {
				line = s.lines[k]
			} else {
				continue
			}
			line.Quantity = m.TargetQuantity
		}

		i := indexOfLine(s.lines, m.LineID)
		_, newer := s.pending[m.LineID]
		if i < 0 && !newer {
			// removed locally while the write was in flight
			continue
		}

		if deleted {
			if j := indexOfLine(s.confirmed, m.LineID); j >= 0 {
				s.confirmed = removeLineAt(s.confirmed, j)
			}
		} else {
			s.confirmed = upsertLine(s.confirmed, line)
		}

		if i < 0 {
			continue
		}
		switch {
		case newer && !deleted:
			s.lines[i].UnitPriceMinorUnits = line.UnitPriceMinorUnits
		case newer:
			// the next flush will hit a missing line and refresh
		case deleted:
			s.lines = removeLineAt(s.lines, i)
		default:
			s.lines[i] = line
		}
	}
}

// Refresh replaces the snapshot with the store's cart and discards pending
// edits. Concurrent callers share one fetch.
func (s *Session) Refresh(ctx context.Context) error {
	_, err, _ := s.refresh.Do("refresh", func() (interface{}, error) {
		return nil, s.reconcile(ctx)
	})
	return err
}

func (s *Session) reconcile(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.generation++
	s.stopTimerLocked()
	s.pending = make(map[string]PendingMutation)
	s.fireLocked(evRefreshStart)
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	snap, err := s.store.FetchCart(callCtx)
	cancel()

	s.mu.Lock()
	s.pending = make(map[string]PendingMutation)
	s.stopTimerLocked()
	if err != nil {
		s.lines = cloneLines(s.confirmed)
	} else {
		fresh := NewSnapshot(snap.Lines).Lines
		s.lines = fresh
		s.confirmed = cloneLines(fresh)
	}
	s.fireLocked(evRefreshDone)
	s.mu.Unlock()

	if err != nil {
		return classify("fetch cart", err)
	}
	s.notify()
	return nil
}

// ClearCart deletes every line. A partial failure is followed by a refresh so
// the snapshot shows what actually survived.
func (s *Session) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return nil
	}
	ids := make([]string, len(s.lines))
	for i, line := range s.lines {
		ids[i] = line.ID
	}
	s.generation++
	s.stopTimerLocked()
	s.pending = make(map[string]PendingMutation)
	s.lines = nil
	s.fireLocked(evRefreshStart)
	s.mu.Unlock()

	var (
		failed  error
		deleted []string
	)
	for _, id := range ids {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.store.DeleteLine(callCtx, id)
		cancel()
		if err != nil && !IsNotFound(err) {
			failed = errors.Join(failed, err)
			continue
		}
		deleted = append(deleted, id)
	}

	s.mu.Lock()
	for _, id := range deleted {
		if j := indexOfLine(s.confirmed, id); j >= 0 {
			s.confirmed = removeLineAt(s.confirmed, j)
		}
	}
	s.mu.Unlock()

	refreshErr := s.Refresh(context.WithoutCancel(ctx))
	if failed != nil {
		s.logger.WithError(failed).Warn("Clear cart partially failed")
		return classify("clear cart", failed)
	}
	return refreshErr
}

// Close stops the debounce timer and drops unflushed edits. Timer callbacks
// that race with Close do nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
	s.pending = make(map[string]PendingMutation)
}

func (s *Session) onTimer(seq uint64) {
	if err := s.flush(context.Background(), seq); err != nil {
		s.reportError(err)
	}
}

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Summary())
}

func (s *Session) fireLocked(e event) {
	to, err := next(s.state, e)
	if err != nil {
		s.logger.WithError(err).Error("Cart session state machine")
		return
	}
	if to != s.state {
		s.logger.WithFields(logrus.Fields{"from": s.state, "to": to, "event": e}).Debug("State change")
	}
	s.state = to
}

func (s *Session) resetTimerLocked() {
	s.stopTimerLocked()
	if s.state != Dirty {
		// Flushing reschedules on completion; Reconciling discards the edit
		return
	}
	seq := s.timerSeq
	s.timer = s.scheduler.AfterFunc(s.window, func() { s.onTimer(seq) })
}

func (s *Session) stopTimerLocked() {
	s.timerSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) pendingLocked() []PendingMutation {
	out := make([]PendingMutation, 0, len(s.pending))
	for _, m := range s.pending {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt < out[j].IssuedAt })
	return out
}

// restoreLocked puts back a captured snapshot, keeping lines that were added
// after it was taken.
func (s *Session) restoreLocked(prior []CartLine) {
	restored := cloneLines(prior)
	for _, line := range s.lines {
		if indexOfLine(restored, line.ID) < 0 {
			restored = append(restored, line)
		}
	}
	s.lines = restored
}

// applyPendingLocked reapplies pending target quantities onto the lines
func (s *Session) applyPendingLocked() {
	for id, m := range s.pending {
		if i := indexOfLine(s.lines, id); i >= 0 {
			s.lines[i].Quantity = m.TargetQuantity
		}
	}
}
