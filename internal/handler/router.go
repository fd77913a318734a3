package handler

import (
	"brickvest/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter wires the HTTP surface.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdraw", h.Withdraw)
			wallet.GET("/transactions", h.ListTransactions)
		}

		referral := api.Group("/referral")
		{
			referral.GET("/info", h.GetReferralInfo)
			referral.POST("/code/regenerate", h.RegenerateCode)
			referral.POST("/signup", h.ReferralSignup)
		}

		reinvest := api.Group("/reinvest")
		{
			reinvest.GET("/plan", h.GetPlan)
			reinvest.POST("/plan", h.CreatePlan)
			reinvest.PUT("/plan", h.UpdatePlan)
			reinvest.POST("/plan/pause", h.PausePlan)
			reinvest.POST("/plan/resume", h.ResumePlan)
			reinvest.POST("/plan/cancel", h.CancelPlan)
			reinvest.POST("/allocations/approve", h.ApproveAllocation)
			reinvest.GET("/payouts", h.ListPayouts)
		}

		// Webhook-style ingestion for environments without Kafka. Same
		// dispatch path as the consumer, so idempotence holds either way.
		events := api.Group("/events")
		{
			events.POST("/user-approved", h.IngestUserApproved)
			events.POST("/investment-created", h.IngestInvestmentCreated)
			events.POST("/rental-payout", h.IngestRentalPayout)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
