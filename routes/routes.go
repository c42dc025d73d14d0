package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/bellapacxx/bingo-live/controllers"
)

func SetupRoutes(r *gin.Engine, api *controllers.API, auth *controllers.Auth) {
	apiGroup := r.Group("/api")
	apiGroup.Use(auth.Identity())

	// ----------------------
	// Card routes
	// ----------------------
	apiGroup.GET("/cards", api.ListAvailable)  // Browse available cards
	apiGroup.GET("/cards/mine", api.MyCards)   // Cards owned by the caller
	apiGroup.POST("/purchase", api.Purchase)   // Buy cards (x402 payment)

	// ----------------------
	// Operator routes
	// ----------------------
	op := apiGroup.Group("/")
	op.Use(auth.OperatorRequired())
	op.POST("/cards/generate", api.GenerateCards)
	op.POST("/game/start", api.StartGame)
	op.POST("/game/pause", api.PauseGame)
	op.POST("/game/resume", api.ResumeGame)
	op.POST("/game/end", api.EndGame)
	op.POST("/game/clear", api.ClearGame)
	op.POST("/game/call", api.CallNumber)
	op.POST("/game/mode", api.SetMode)
	op.POST("/game/verify", api.VerifyWinner)
	op.POST("/game/reject", api.RejectWinner)
}
