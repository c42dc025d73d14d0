package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/services"
)

// API exposes the orchestrator over REST. Dependencies are injected, never
// package globals, so multiple service instances behave correctly.
type API struct {
	Orch *services.GameOrchestrator
	Pool *services.CardPool
}

func NewAPI(orch *services.GameOrchestrator, pool *services.CardPool) *API {
	return &API{Orch: orch, Pool: pool}
}

// statusFor maps stable engine reason codes onto HTTP statuses.
func statusFor(code services.ErrorCode) int {
	switch code {
	case services.CodeInvalidArgument:
		return http.StatusBadRequest
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodePaymentNotAuthorized, services.CodePaymentTimeout:
		return http.StatusPaymentRequired
	case services.CodeAlreadyCalled, services.CodeInvalidTransition,
		services.CodeInsufficientInventory, services.CodeConditionalCheckFailed:
		return http.StatusConflict
	case services.CodeIntegrityViolation:
		return http.StatusUnprocessableEntity
	case services.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail renders the stable reason code and message. Wrapped storage causes
// stay in the logs; they never cross the API boundary.
func fail(c *gin.Context, err error) {
	var e *services.Error
	if errors.As(err, &e) {
		c.JSON(statusFor(e.Code), gin.H{"code": e.Code, "message": e.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "internal error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": services.CodeInvalidArgument, "message": err.Error()})
}

// --- cards ---

type generateRequest struct {
	Count int `json:"count" binding:"required,gt=0"`
}

func (a *API) GenerateCards(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cards, err := a.Orch.GenerateCards(c.Request.Context(), req.Count)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"generated": len(cards)})
}

func (a *API) ListAvailable(c *gin.Context) {
	cards, err := a.Pool.ListAvailable(c.Request.Context(), 200)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (a *API) MyCards(c *gin.Context) {
	identity := c.GetString(identityKey)
	if identity == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "identity required"})
		return
	}
	cards, err := a.Pool.ListByOwner(c.Request.Context(), identity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

type purchaseRequest struct {
	Quantity int    `json:"quantity" binding:"required"`
	Wallet   string `json:"wallet" binding:"required"`
}

func (a *API) Purchase(c *gin.Context) {
	identity := c.GetString(identityKey)
	if identity == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "identity required"})
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cards, err := a.Orch.Purchase(c.Request.Context(), req.Quantity, identity, req.Wallet)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

// --- game control ---

func (a *API) StartGame(c *gin.Context)  { a.gameOp(c, a.Orch.StartGame) }
func (a *API) PauseGame(c *gin.Context)  { a.gameOp(c, a.Orch.PauseGame) }
func (a *API) ResumeGame(c *gin.Context) { a.gameOp(c, a.Orch.ResumeGame) }
func (a *API) EndGame(c *gin.Context)    { a.gameOp(c, a.Orch.EndGame) }
func (a *API) ClearGame(c *gin.Context)  { a.gameOp(c, a.Orch.ClearGame) }

type callRequest struct {
	Number int `json:"number" binding:"required"`
}

func (a *API) CallNumber(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	game, err := a.Orch.CallNumber(c.Request.Context(), req.Number)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

type modeRequest struct {
	Mode models.GameMode `json:"mode" binding:"required"`
}

func (a *API) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	game, err := a.Orch.SetMode(c.Request.Context(), req.Mode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

type winnerRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

func (a *API) VerifyWinner(c *gin.Context) {
	var req winnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	game, err := a.Orch.VerifyWinner(c.Request.Context(), req.CardID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

func (a *API) RejectWinner(c *gin.Context) {
	var req winnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	game, err := a.Orch.RejectWinner(c.Request.Context(), req.CardID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

func (a *API) gameOp(c *gin.Context, op func(ctx context.Context) (*models.Game, error)) {
	game, err := op(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}
