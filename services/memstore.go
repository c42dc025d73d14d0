package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bellapacxx/bingo-live/models"
)

// MemoryStore implements the same conditional-write semantics as the gorm
// store over mutex-guarded maps. It backs tests and single-process
// deployments without postgres, and emits the same change feed, which makes
// it the eventually-consistent feed-driven variant in miniature.
type MemoryStore struct {
	mu      sync.Mutex
	cards   map[string]*models.Card
	sigs    map[string]bool
	owners  []models.Ownership
	games   map[string]*models.Game
	current string
	feed    ChangeFeed
	ownSeq  uint
}

func NewMemoryStore(feed ChangeFeed) *MemoryStore {
	return &MemoryStore{
		cards: make(map[string]*models.Card),
		sigs:  make(map[string]bool),
		games: make(map[string]*models.Game),
		feed:  feed,
	}
}

func (s *MemoryStore) emit(ctx context.Context, entity, id, op string) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(ctx, ChangeEvent{Entity: entity, ID: id, Op: op, At: time.Now()})
}

func cloneCard(c *models.Card) *models.Card {
	cp := *c
	if c.ReservationExpiry != nil {
		t := *c.ReservationExpiry
		cp.ReservationExpiry = &t
	}
	if c.PurchasedAt != nil {
		t := *c.PurchasedAt
		cp.PurchasedAt = &t
	}
	return &cp
}

func cloneGame(g *models.Game) *models.Game {
	cp := *g
	cp.CalledNumbers = append([]int(nil), g.CalledNumbers...)
	if g.Winner != nil {
		w := *g.Winner
		cp.Winner = &w
	}
	if g.StartTime != nil {
		t := *g.StartTime
		cp.StartTime = &t
	}
	if g.EndTime != nil {
		t := *g.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// -------------------- cards --------------------

func (s *MemoryStore) InsertCards(ctx context.Context, cards []*models.Card) error {
	s.mu.Lock()
	for _, c := range cards {
		if s.sigs[c.Signature] {
			s.mu.Unlock()
			return Errorf(CodeConditionalCheckFailed, "duplicate card signature for %s", c.ID)
		}
	}
	for _, c := range cards {
		s.sigs[c.Signature] = true
		s.cards[c.ID] = cloneCard(c)
	}
	s.mu.Unlock()
	for _, c := range cards {
		s.emit(ctx, "card", c.ID, "insert")
	}
	return nil
}

func (s *MemoryStore) GetCard(_ context.Context, id string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, Errorf(CodeNotFound, "card %s not found", id)
	}
	return cloneCard(c), nil
}

func (s *MemoryStore) ListCardsByStatus(_ context.Context, status models.CardStatus, limit int) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.selectCards(func(c *models.Card) bool { return c.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListCardsByOwner(_ context.Context, owner string) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.selectCards(func(c *models.Card) bool { return c.Owner == owner })
	sortByPurchase(out)
	return out, nil
}

func (s *MemoryStore) ListPurchased(_ context.Context) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.selectCards(func(c *models.Card) bool { return c.Status == models.CardPurchased })
	sortByPurchase(out)
	return out, nil
}

func (s *MemoryStore) CountCardsByStatus(_ context.Context, status models.CardStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.cards {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ReserveCard(ctx context.Context, id, holder string, expiry time.Time) error {
	s.mu.Lock()
	c, ok := s.cards[id]
	if !ok || c.Status != models.CardAvailable {
		s.mu.Unlock()
		return Errorf(CodeConditionalCheckFailed, "card %s not available", id)
	}
	c.Status = models.CardReserved
	c.ReservedBy = holder
	c.ReservationExpiry = &expiry
	c.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.emit(ctx, "card", id, "update")
	return nil
}

func (s *MemoryStore) ReleaseCard(ctx context.Context, id, holder string) error {
	s.mu.Lock()
	c, ok := s.cards[id]
	if !ok || c.Status != models.CardReserved || c.ReservedBy != holder {
		s.mu.Unlock()
		return Errorf(CodeConditionalCheckFailed, "card %s not reserved by %s", id, holder)
	}
	s.clearReservation(c, models.CardAvailable)
	s.mu.Unlock()
	s.emit(ctx, "card", id, "update")
	return nil
}

func (s *MemoryStore) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	var n int64
	for _, c := range s.cards {
		if c.Status == models.CardReserved && c.ReservationExpiry != nil && c.ReservationExpiry.Before(now) {
			s.clearReservation(c, models.CardAvailable)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.emit(ctx, "card", "*", "update")
	}
	return n, nil
}

func (s *MemoryStore) ConfirmCard(ctx context.Context, id, holder string, p Purchase) error {
	s.mu.Lock()
	c, ok := s.cards[id]
	if !ok || c.Status != models.CardReserved || c.ReservedBy != holder {
		s.mu.Unlock()
		return Errorf(CodeConditionalCheckFailed, "card %s no longer reserved by holder", id)
	}
	s.clearReservation(c, models.CardPurchased)
	c.Owner = p.Owner
	c.OwnerWallet = p.Wallet
	c.TxRef = p.TxRef
	c.UnitPrice = p.UnitPrice
	at := p.At
	c.PurchasedAt = &at
	s.ownSeq++
	s.owners = append(s.owners, models.Ownership{
		ID:        s.ownSeq,
		Owner:     p.Owner,
		CardID:    id,
		Wallet:    p.Wallet,
		TxRef:     p.TxRef,
		CreatedAt: at,
	})
	s.mu.Unlock()
	s.emit(ctx, "card", id, "update")
	return nil
}

func (s *MemoryStore) DisableCard(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.cards[id]
	if !ok || c.Status != models.CardPurchased {
		s.mu.Unlock()
		return Errorf(CodeConditionalCheckFailed, "card %s not purchased", id)
	}
	c.Status = models.CardWon
	c.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.emit(ctx, "card", id, "update")
	return nil
}

func (s *MemoryStore) ReenableDisabled(ctx context.Context) (int64, error) {
	s.mu.Lock()
	var n int64
	for _, c := range s.cards {
		if c.Status == models.CardWon {
			c.Status = models.CardPurchased
			c.UpdatedAt = time.Now()
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.emit(ctx, "card", "*", "update")
	}
	return n, nil
}

// Ownerships returns the owner index rows, for tests and audits.
func (s *MemoryStore) Ownerships() []models.Ownership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Ownership(nil), s.owners...)
}

// -------------------- game --------------------

func (s *MemoryStore) CurrentGame(_ context.Context) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil, NewError(CodeNotFound, "no current game")
	}
	g, ok := s.games[s.current]
	if !ok {
		return nil, NewError(CodeNotFound, "current game row missing")
	}
	return cloneGame(g), nil
}

func (s *MemoryStore) SaveGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	g.UpdatedAt = time.Now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = g.UpdatedAt
	}
	s.games[g.ID] = cloneGame(g)
	s.current = g.ID
	s.mu.Unlock()
	s.emit(ctx, "game", g.ID, "update")
	return nil
}

func (s *MemoryStore) TransitionGame(ctx context.Context, id string, from []models.GameStatus, mutate func(*models.Game)) (*models.Game, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, Errorf(CodeNotFound, "game %s not found", id)
	}
	matched := false
	for _, st := range from {
		if g.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		status := g.Status
		s.mu.Unlock()
		return nil, Errorf(CodeConditionalCheckFailed, "game %s is %s", id, status)
	}
	mutate(g)
	g.UpdatedAt = time.Now()
	out := cloneGame(g)
	s.mu.Unlock()
	s.emit(ctx, "game", id, "update")
	return out, nil
}

func (s *MemoryStore) AppendCalledNumber(ctx context.Context, id string, n int) (*models.Game, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, Errorf(CodeNotFound, "game %s not found", id)
	}
	if g.Status != models.GamePlaying {
		status := g.Status
		s.mu.Unlock()
		return nil, Errorf(CodeInvalidTransition, "cannot call numbers while game is %s", status)
	}
	for _, m := range g.CalledNumbers {
		if m == n {
			s.mu.Unlock()
			return nil, Errorf(CodeAlreadyCalled, "number %d already called", n)
		}
	}
	g.CalledNumbers = append(g.CalledNumbers, n)
	g.CurrentNumber = n
	g.UpdatedAt = time.Now()
	out := cloneGame(g)
	s.mu.Unlock()
	s.emit(ctx, "game", id, "update")
	return out, nil
}

// -------------------- helpers --------------------

func (s *MemoryStore) selectCards(pred func(*models.Card) bool) []models.Card {
	out := make([]models.Card, 0)
	for _, c := range s.cards {
		if pred(c) {
			out = append(out, *cloneCard(c))
		}
	}
	return out
}

func (s *MemoryStore) clearReservation(c *models.Card, to models.CardStatus) {
	c.Status = to
	c.ReservedBy = ""
	c.ReservationExpiry = nil
	c.UpdatedAt = time.Now()
}

func sortByPurchase(cards []models.Card) {
	sort.Slice(cards, func(i, j int) bool {
		ti, tj := cards[i].PurchasedAt, cards[j].PurchasedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return cards[i].ID < cards[j].ID
		default:
			return ti.Before(*tj)
		}
	})
}
