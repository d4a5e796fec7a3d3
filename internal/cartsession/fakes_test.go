package cartsession

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/vineyard-shop/internal/pkg/logging"
)

// fakeStore is an in-memory authoritative cart
type fakeStore struct {
	mu        sync.Mutex
	lines     []CartLine
	prices    map[string]int64
	nextID    int
	clampTo   int
	fetches   int
	adds      []string
	sets      []QuantityUpdate
	deletes   []string
	fetchErr  error
	addErr    error
	setErr    error
	deleteErr map[string]error
	onSet     func(lineID string)
}

func newFakeStore(lines ...CartLine) *fakeStore {
	return &fakeStore{
		lines:     lines,
		prices:    map[string]int64{},
		nextID:    100,
		deleteErr: map[string]error{},
	}
}

func (f *fakeStore) FetchCart(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return Snapshot{}, f.fetchErr
	}
	return NewSnapshot(cloneLines(f.lines)), nil
}

func (f *fakeStore) AddLine(ctx context.Context, productID string, quantity int) (CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, productID)
	if f.addErr != nil {
		return CartLine{}, f.addErr
	}
	if i := indexOfProduct(f.lines, productID); i >= 0 {
		f.lines[i].Quantity += quantity
		return f.lines[i], nil
	}
	price, ok := f.prices[productID]
	if !ok {
		price = 1000
	}
	line := CartLine{ID: fmt.Sprintf("line-%d", f.nextID), ProductID: productID, Quantity: quantity, UnitPriceMinorUnits: price}
	f.nextID++
	f.lines = append(f.lines, line)
	return line, nil
}

func (f *fakeStore) SetQuantity(ctx context.Context, lineID string, quantity int) (*CartLine, error) {
	if f.onSet != nil {
		f.onSet(lineID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, QuantityUpdate{LineID: lineID, Quantity: quantity})
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.applyLocked(lineID, quantity)
}

func (f *fakeStore) applyLocked(lineID string, quantity int) (*CartLine, error) {
	i := indexOfLine(f.lines, lineID)
	if i < 0 {
		return nil, &NotFoundError{LineID: lineID}
	}
	if f.clampTo > 0 && quantity > f.clampTo {
		quantity = f.clampTo
	}
	f.lines[i].Quantity = quantity
	line := f.lines[i]
	return &line, nil
}

func (f *fakeStore) DeleteLine(ctx context.Context, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, lineID)
	if err := f.deleteErr[lineID]; err != nil {
		return err
	}
	i := indexOfLine(f.lines, lineID)
	if i < 0 {
		return &NotFoundError{LineID: lineID}
	}
	f.lines = removeLineAt(f.lines, i)
	return nil
}

func (f *fakeStore) setCalls() []QuantityUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QuantityUpdate(nil), f.sets...)
}

func (f *fakeStore) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeStore) drop(lineID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := indexOfLine(f.lines, lineID); i >= 0 {
		f.lines = removeLineAt(f.lines, i)
	}
}

// batchStore adds the batched write
type batchStore struct {
	*fakeStore
	batches [][]QuantityUpdate
}

func (b *batchStore) SetQuantities(ctx context.Context, updates []QuantityUpdate) ([]CartLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, updates)
	if b.setErr != nil {
		return nil, b.setErr
	}
	out := make([]CartLine, 0, len(updates))
	for _, u := range updates {
		line, err := b.applyLocked(u.LineID, u.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, *line)
	}
	return out, nil
}

// slowStore never answers quantity writes before the context expires
type slowStore struct {
	*fakeStore
}

func (s *slowStore) SetQuantity(ctx context.Context, lineID string, quantity int) (*CartLine, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// manualScheduler runs debounce callbacks only when the test says so
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	sched   *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{sched: m, d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Fire runs the newest live timer and reports whether there was one
func (m *manualScheduler) Fire() bool {
	m.mu.Lock()
	var live *manualTimer
	for i := len(m.timers) - 1; i >= 0; i-- {
		if !m.timers[i].stopped {
			live = m.timers[i]
			break
		}
	}
	if live != nil {
		live.stopped = true
	}
	m.mu.Unlock()

	if live == nil {
		return false
	}
	live.f()
	return true
}

func (m *manualScheduler) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *manualScheduler) last() *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

func newTestSession(t *testing.T, store Store, opts ...Option) (*Session, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	opts = append([]Option{WithScheduler(sched), WithLogger(logging.Discard())}, opts...)
	s := New(store, opts...)
	require.NoError(t, s.Refresh(context.Background()))
	t.Cleanup(s.Close)
	return s, sched
}

func wine(id, product string, qty int, price int64) CartLine {
	return CartLine{ID: id, ProductID: product, Quantity: qty, UnitPriceMinorUnits: price}
}
