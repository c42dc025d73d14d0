package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bellapacxx/bingo-live/models"
)

// Fixed per-column number ranges: B 1-15, I 16-30, N 31-45, G 46-60, O 61-75.
var columnRanges = [5][2]int{{1, 15}, {16, 30}, {31, 45}, {46, 60}, {61, 75}}

const (
	cardIDLength        = 21
	maxGenerateAttempts = 50
)

// CardPool owns card inventory: generation, lookup and the integrity tag
// that lets a card be verified without re-deriving its grid.
type CardPool struct {
	store  CardStore
	secret []byte
}

func NewCardPool(store CardStore, secret []byte) *CardPool {
	return &CardPool{store: store, secret: secret}
}

// Generate creates count cards with unpredictable, collision-free grids in
// available status. Grids that collide with another card in the batch are
// discarded and redrawn.
func (p *CardPool) Generate(ctx context.Context, count int) ([]models.Card, error) {
	if count <= 0 {
		return nil, NewError(CodeInvalidArgument, "card count must be positive")
	}

	seen := make(map[string]bool, count)
	cards := make([]*models.Card, 0, count)
	now := time.Now().UTC()

	for len(cards) < count {
		var grid models.Grid
		var sig string
		ok := false
		for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
			g, err := randomGrid()
			if err != nil {
				return nil, WrapError(CodeStorageUnavailable, "random source failed", err)
			}
			s := canonicalSignature(g)
			if !seen[s] {
				grid, sig, ok = g, s, true
				break
			}
		}
		if !ok {
			return nil, NewError(CodeStorageUnavailable, "could not draw a unique grid")
		}
		seen[sig] = true

		id, err := gonanoid.New(cardIDLength)
		if err != nil {
			return nil, WrapError(CodeStorageUnavailable, "id generation failed", err)
		}
		card := &models.Card{
			ID:        id,
			Grid:      grid,
			Signature: sig,
			Status:    models.CardAvailable,
			CreatedAt: now,
		}
		card.IntegrityTag = p.tag(card)
		cards = append(cards, card)
	}

	if err := p.store.InsertCards(ctx, cards); err != nil {
		return nil, err
	}

	out := make([]models.Card, len(cards))
	for i, c := range cards {
		out[i] = *c
	}
	return out, nil
}

// ListAvailable returns allocation candidates, oldest-created first.
func (p *CardPool) ListAvailable(ctx context.Context, limit int) ([]models.Card, error) {
	return p.store.ListCardsByStatus(ctx, models.CardAvailable, limit)
}

func (p *CardPool) ListByOwner(ctx context.Context, owner string) ([]models.Card, error) {
	return p.store.ListCardsByOwner(ctx, owner)
}

// ListPurchased returns in-play cards in the stable oldest-purchase-first
// order the winner scan requires.
func (p *CardPool) ListPurchased(ctx context.Context) ([]models.Card, error) {
	return p.store.ListPurchased(ctx)
}

// FindByID fetches a card and verifies its integrity tag. A mismatch is
// tampering: the card is rejected from further processing.
func (p *CardPool) FindByID(ctx context.Context, id string) (*models.Card, error) {
	card, err := p.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.VerifyIntegrity(card); err != nil {
		return nil, err
	}
	return card, nil
}

// VerifyIntegrity re-derives the keyed tag and compares in constant time.
func (p *CardPool) VerifyIntegrity(card *models.Card) error {
	want := p.tag(card)
	if !hmac.Equal([]byte(want), []byte(card.IntegrityTag)) {
		return Errorf(CodeIntegrityViolation, "card %s failed integrity check", card.ID)
	}
	return nil
}

// tag computes the keyed HMAC over the canonical serialization of
// (id, grid, creation time).
func (p *CardPool) tag(card *models.Card) string {
	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%s|%s|%d", card.ID, canonicalGrid(card.Grid), card.CreatedAt.UTC().Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// randomGrid draws five distinct numbers per column from a cryptographically
// secure source and blanks the free center cell.
func randomGrid() (models.Grid, error) {
	var cols [5][5]int
	for c, rng := range columnRanges {
		col, err := randomColumn(rng[0], rng[1])
		if err != nil {
			return models.Grid{}, err
		}
		cols[c] = col
	}
	cols[models.FreeCol][models.FreeRow] = 0
	return models.Grid{B: cols[0], I: cols[1], N: cols[2], G: cols[3], O: cols[4]}, nil
}

// randomColumn picks 5 distinct values in [lo, hi]. crypto/rand.Int performs
// rejection sampling internally, so the draw is unbiased.
func randomColumn(lo, hi int) ([5]int, error) {
	span := int64(hi - lo + 1)
	var col [5]int
	used := make(map[int]bool, 5)
	for i := 0; i < 5; {
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return col, err
		}
		v := lo + int(n.Int64())
		if used[v] {
			continue
		}
		used[v] = true
		col[i] = v
		i++
	}
	return col, nil
}

// canonicalSignature is the batch-uniqueness key: per-column values sorted,
// columns concatenated. Order within a column does not make a card distinct.
func canonicalSignature(g models.Grid) string {
	var parts []string
	for c := 0; c < 5; c++ {
		col := g.Column(c)
		vals := col[:]
		sorted := append([]int(nil), vals...)
		sort.Ints(sorted)
		for _, v := range sorted {
			parts = append(parts, strconv.Itoa(v))
		}
	}
	return strings.Join(parts, ",")
}

// canonicalGrid serializes the grid in stored cell order for the tag.
func canonicalGrid(g models.Grid) string {
	var parts []string
	for c := 0; c < 5; c++ {
		col := g.Column(c)
		for _, v := range col {
			parts = append(parts, strconv.Itoa(v))
		}
	}
	return strings.Join(parts, ",")
}
