package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"safebite-api/internal/api/handlers/health"
	profileHandler "safebite-api/internal/api/handlers/profile"
	scanHandler "safebite-api/internal/api/handlers/scan"
	"safebite-api/internal/api/middleware"
	"safebite-api/internal/core/catalog"
	"safebite-api/internal/core/product"
	profileService "safebite-api/internal/core/profile"
	"safebite-api/internal/core/recommend"
	"safebite-api/internal/core/risk"
	scanService "safebite-api/internal/core/scan"
	"safebite-api/internal/infrastructure/config"
	"safebite-api/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// 單次請求超時：本地命中毫秒級，外部抓取以目錄超時為上限
	timeoutDuration = 30 * time.Second
	// 請求體大小限制 (64KB)，輪廓更新是唯一有請求體的端點
	maxBodySize = 64 << 10
)

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, db *gorm.DB) (*gin.Engine, error) {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New()) // 自動生成請求 ID

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "X-Device-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(maxBodySize))

	// 限流與寫入去重
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	router.Use(middleware.Deduplication(cfg))

	common.LogInfo("Initializing services",
		zap.String("catalog_base_url", cfg.Catalog.BaseURL),
		zap.Bool("lookup_cache_enabled", cfg.LookupCache.Enabled),
		zap.Duration("timeout", timeoutDuration),
	)

	// 初始化風險評分引擎
	kb, policy, err := risk.LoadKnowledgeBase(cfg.Risk.KnowledgeFile)
	if err != nil {
		common.LogError("Failed to load risk knowledge base", zap.Error(err))
		return nil, fmt.Errorf("failed to load risk knowledge base: %w", err)
	}
	engine := risk.NewEngine(kb, policy)

	// 初始化儲存與外部目錄
	store := product.NewStore(db)
	catalogClient := catalog.NewClient(&cfg.Catalog)
	profiles := profileService.NewService(db)
	recommender := recommend.NewService(store)
	negCache := scanService.NewNegativeCache(&cfg.LookupCache)

	// 初始化解析管線
	resolver := scanService.NewService(store, catalogClient, profiles, engine, recommender, negCache)

	common.LogInfo("Resolution services initialized successfully",
		zap.String("environment", cfg.App.Env),
	)

	// 全局中間件：設置超時和服務
	router.Use(func(c *gin.Context) {
		// 設置請求超時
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()

		// 創建新的請求上下文
		req := c.Request.WithContext(ctx)
		c.Request = req

		// 供健康檢查取用
		c.Set("config", cfg)
		c.Set("db", db)

		// 處理請求
		c.Next()

		// 檢查是否超時
		if ctx.Err() == context.DeadlineExceeded {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetHeader("X-Request-ID")),
				zap.Duration("timeout", timeoutDuration),
			)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
				"code":  "REQUEST_TIMEOUT",
				"details": gin.H{
					"timeout": timeoutDuration.String(),
				},
			})
			c.Abort()
			return
		}
	})

	// 健康檢查路由
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	{
		scanHandlerInstance := scanHandler.NewHandler(resolver, store)
		profileHandlerInstance := profileHandler.NewHandler(profiles)

		// 商品：條碼解析與成分搜尋
		productGroup := api.Group("/products")
		{
			// 靜態路徑要排在 :barcode 之前註冊
			productGroup.GET("/search-ingredient", scanHandlerInstance.HandleIngredientSearch)
			productGroup.GET("/:barcode", scanHandlerInstance.HandleResolve)
		}

		// 使用者輪廓
		userGroup := api.Group("/users")
		{
			userGroup.PUT("/update", profileHandlerInstance.HandleUpdate)
			userGroup.GET("/:deviceId", profileHandlerInstance.HandleGet)
		}
	}

	common.LogInfo("Router setup completed")
	return router, nil
}
