package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bellapacxx/bingo-live/models"
)

// GormStore is the transactional store: per-card and per-game linearization
// comes from conditional UPDATEs guarded on current status (RowsAffected
// tells contention apart from success), and confirm runs card update plus
// ownership row in one DB transaction.
type GormStore struct {
	db   *gorm.DB
	feed ChangeFeed
}

// NewGormStore wraps db. feed may be nil when broadcasts are synchronous.
func NewGormStore(db *gorm.DB, feed ChangeFeed) *GormStore {
	return &GormStore{db: db, feed: feed}
}

func (s *GormStore) emit(ctx context.Context, entity, id, op string) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(ctx, ChangeEvent{Entity: entity, ID: id, Op: op, At: time.Now()})
}

// -------------------- cards --------------------

func (s *GormStore) InsertCards(ctx context.Context, cards []*models.Card) error {
	if err := s.db.WithContext(ctx).Create(&cards).Error; err != nil {
		return storageErr("insert cards", err)
	}
	for _, c := range cards {
		s.emit(ctx, "card", c.ID, "insert")
	}
	return nil
}

func (s *GormStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).First(&card, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Errorf(CodeNotFound, "card %s not found", id)
	}
	if err != nil {
		return nil, storageErr("get card", err)
	}
	return &card, nil
}

func (s *GormStore) ListCardsByStatus(ctx context.Context, status models.CardStatus, limit int) ([]models.Card, error) {
	var cards []models.Card
	q := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&cards).Error; err != nil {
		return nil, storageErr("list cards by status", err)
	}
	return cards, nil
}

func (s *GormStore) ListCardsByOwner(ctx context.Context, owner string) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).Where("owner = ?", owner).Order("purchased_at ASC").Find(&cards).Error
	if err != nil {
		return nil, storageErr("list cards by owner", err)
	}
	return cards, nil
}

func (s *GormStore) ListPurchased(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).Where("status = ?", models.CardPurchased).Order("purchased_at ASC").Find(&cards).Error
	if err != nil {
		return nil, storageErr("list purchased cards", err)
	}
	return cards, nil
}

func (s *GormStore) CountCardsByStatus(ctx context.Context, status models.CardStatus) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Card{}).Where("status = ?", status).Count(&n).Error
	if err != nil {
		return 0, storageErr("count cards", err)
	}
	return n, nil
}

func (s *GormStore) ReserveCard(ctx context.Context, id, holder string, expiry time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("id = ? AND status = ?", id, models.CardAvailable).
		Updates(map[string]any{
			"status":             models.CardReserved,
			"reserved_by":        holder,
			"reservation_expiry": expiry,
		})
	return s.afterCardWrite(ctx, res, id, "reserve card")
}

func (s *GormStore) ReleaseCard(ctx context.Context, id, holder string) error {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("id = ? AND status = ? AND reserved_by = ?", id, models.CardReserved, holder).
		Updates(map[string]any{
			"status":             models.CardAvailable,
			"reserved_by":        "",
			"reservation_expiry": nil,
		})
	return s.afterCardWrite(ctx, res, id, "release card")
}

func (s *GormStore) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("status = ? AND reservation_expiry < ?", models.CardReserved, now).
		Updates(map[string]any{
			"status":             models.CardAvailable,
			"reserved_by":        "",
			"reservation_expiry": nil,
		})
	if res.Error != nil {
		return 0, storageErr("release expired reservations", res.Error)
	}
	if res.RowsAffected > 0 {
		s.emit(ctx, "card", "*", "update")
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ConfirmCard(ctx context.Context, id, holder string, p Purchase) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Card{}).
			Where("id = ? AND status = ? AND reserved_by = ?", id, models.CardReserved, holder).
			Updates(map[string]any{
				"status":             models.CardPurchased,
				"owner":              p.Owner,
				"owner_wallet":       p.Wallet,
				"tx_ref":             p.TxRef,
				"unit_price":         p.UnitPrice,
				"purchased_at":       p.At,
				"reserved_by":        "",
				"reservation_expiry": nil,
			})
		if res.Error != nil {
			return storageErr("confirm card", res.Error)
		}
		if res.RowsAffected == 0 {
			return Errorf(CodeConditionalCheckFailed, "card %s no longer reserved by holder", id)
		}
		own := models.Ownership{Owner: p.Owner, CardID: id, Wallet: p.Wallet, TxRef: p.TxRef}
		if err := tx.Create(&own).Error; err != nil {
			return storageErr("write ownership index", err)
		}
		return nil
	})
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return typed
		}
		return storageErr("confirm card", err)
	}
	s.emit(ctx, "card", id, "update")
	return nil
}

func (s *GormStore) DisableCard(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("id = ? AND status = ?", id, models.CardPurchased).
		Update("status", models.CardWon)
	return s.afterCardWrite(ctx, res, id, "disable card")
}

func (s *GormStore) ReenableDisabled(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("status = ?", models.CardWon).
		Update("status", models.CardPurchased)
	if res.Error != nil {
		return 0, storageErr("re-enable disabled cards", res.Error)
	}
	if res.RowsAffected > 0 {
		s.emit(ctx, "card", "*", "update")
	}
	return res.RowsAffected, nil
}

func (s *GormStore) afterCardWrite(ctx context.Context, res *gorm.DB, id, op string) error {
	if res.Error != nil {
		return storageErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return Errorf(CodeConditionalCheckFailed, "%s: card %s not in expected state", op, id)
	}
	s.emit(ctx, "card", id, "update")
	return nil
}

// -------------------- game --------------------

func (s *GormStore) CurrentGame(ctx context.Context) (*models.Game, error) {
	var ptr models.CurrentGame
	err := s.db.WithContext(ctx).First(&ptr, "key = ?", models.CurrentKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(CodeNotFound, "no current game")
	}
	if err != nil {
		return nil, storageErr("read current game pointer", err)
	}

	var game models.Game
	err = s.db.WithContext(ctx).First(&game, "id = ?", ptr.GameID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(CodeNotFound, "current game row missing")
	}
	if err != nil {
		return nil, storageErr("read current game", err)
	}
	return &game, nil
}

func (s *GormStore) SaveGame(ctx context.Context, g *models.Game) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(g).Error; err != nil {
			return err
		}
		ptr := models.CurrentGame{Key: models.CurrentKey, GameID: g.ID}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"game_id", "updated_at"}),
		}).Create(&ptr).Error
	})
	if err != nil {
		return storageErr("save game", err)
	}
	s.emit(ctx, "game", g.ID, "update")
	return nil
}

// TransitionGame serializes the read-mutate-write under a row lock; the
// status guard re-checked inside the transaction makes it a conditional
// write from the caller's point of view.
func (s *GormStore) TransitionGame(ctx context.Context, id string, from []models.GameStatus, mutate func(*models.Game)) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&game, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Errorf(CodeNotFound, "game %s not found", id)
		}
		if err != nil {
			return err
		}
		if !lo.Contains(from, game.Status) {
			return Errorf(CodeConditionalCheckFailed, "game %s is %s", id, game.Status)
		}
		mutate(&game)
		return tx.Save(&game).Error
	})
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, storageErr("transition game", err)
	}
	s.emit(ctx, "game", id, "update")
	return &game, nil
}

// AppendCalledNumber is the duplicate-call guard: the UPDATE only matches
// while the game is playing and the jsonb history does not already contain
// n, so a concurrent duplicate call loses the write race rather than
// double-appending.
func (s *GormStore) AppendCalledNumber(ctx context.Context, id string, n int) (*models.Game, error) {
	elem := datatypes.JSON(fmt.Sprintf("[%d]", n))
	res := s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND status = ?", id, models.GamePlaying).
		Where("NOT (called_numbers @> ?)", elem).
		Updates(map[string]any{
			"called_numbers": gorm.Expr("called_numbers || ?", elem),
			"current_number": n,
		})
	if res.Error != nil {
		return nil, storageErr("append called number", res.Error)
	}
	if res.RowsAffected == 0 {
		// Re-read to report the precise reason.
		game, err := s.gameByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if game.Status != models.GamePlaying {
			return nil, Errorf(CodeInvalidTransition, "cannot call numbers while game is %s", game.Status)
		}
		return nil, Errorf(CodeAlreadyCalled, "number %d already called", n)
	}
	s.emit(ctx, "game", id, "update")
	return s.gameByID(ctx, id)
}

func (s *GormStore) gameByID(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	err := s.db.WithContext(ctx).First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Errorf(CodeNotFound, "game %s not found", id)
	}
	if err != nil {
		return nil, storageErr("read game", err)
	}
	return &game, nil
}
