package services

import (
	"context"
	"sync"
	"time"

	"github.com/bellapacxx/bingo-live/models"
)

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, ev Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *capturePublisher) last() (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	return p.events[len(p.events)-1], true
}

// funcOracle lets a test script the payment verdict.
type funcOracle func(ctx context.Context, amount float64, resource, wallet string) (*Authorization, error)

func (f funcOracle) Authorize(ctx context.Context, amount float64, resource, wallet string) (*Authorization, error) {
	return f(ctx, amount, resource, wallet)
}

// testDeliverer collects payloads; fail makes every delivery report the
// endpoint gone.
type testDeliverer struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (d *testDeliverer) Deliver(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return ErrSubscriberGone
	}
	d.payloads = append(d.payloads, payload)
	return nil
}

func (d *testDeliverer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *testDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

type testEngine struct {
	store  *MemoryStore
	pool   *CardPool
	res    *ReservationManager
	state  *GameStateMachine
	orch   *GameOrchestrator
	pub    *capturePublisher
	oracle funcOracle
}

func newTestEngine() *testEngine {
	e := &testEngine{
		store: NewMemoryStore(nil),
		pub:   &capturePublisher{},
	}
	e.oracle = func(context.Context, float64, string, string) (*Authorization, error) {
		return &Authorization{Authorized: true, TxRef: "tx-test"}, nil
	}
	e.pool = NewCardPool(e.store, []byte("test-secret"))
	e.res = NewReservationManager(e.store, time.Minute)
	e.state = NewGameStateMachine(e.store, e.res)
	oracle := funcOracle(func(ctx context.Context, amount float64, resource, wallet string) (*Authorization, error) {
		return e.oracle(ctx, amount, resource, wallet)
	})
	e.orch = NewGameOrchestrator(e.pool, e.res, e.state, oracle, e.pub, 2.5, time.Second)
	return e
}

// sampleGrid is a fixed valid card shared by the detector and orchestrator
// scenarios; its 24 non-free cells cover exactly these values.
func sampleGrid() models.Grid {
	return models.Grid{
		B: [5]int{1, 5, 10, 12, 15},
		I: [5]int{16, 20, 25, 28, 30},
		N: [5]int{31, 35, 0, 40, 45},
		G: [5]int{46, 50, 55, 58, 60},
		O: [5]int{61, 65, 70, 73, 75},
	}
}

func gridNumbers(g models.Grid) []int {
	out := make([]int, 0, 24)
	for c := 0; c < 5; c++ {
		for _, v := range g.Column(c) {
			if v != 0 {
				out = append(out, v)
			}
		}
	}
	return out
}

func cardIDs(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}
