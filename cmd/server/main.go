package main

import (
	"log"
	"net/http"
	"strconv"

	config "lawn-ai-api/configs"
	"lawn-ai-api/pkg/handlers"
	"lawn-ai-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	embeddingDimension, err := strconv.Atoi(cfg.EmbeddingDimension)
	if err != nil || embeddingDimension <= 0 {
		log.Printf("Warning: EMBEDDING_DIMENSION が不正なため 1536 を使用します: %s", cfg.EmbeddingDimension)
		embeddingDimension = 1536
	}

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	parserService := services.NewReceiptParserService()
	receiptStore := services.NewReceiptStore()
	classifier := services.NewCategoryClassifier()
	forecastService := services.NewForecastService()
	historicalTableService := services.NewHistoricalTableService(classifier)
	trendService := services.NewTrendService()
	azureOpenAIService := services.NewAzureOpenAIService(
		cfg.AzureOpenAIEndpoint,
		cfg.AzureOpenAIAPIKey,
		cfg.AzureOpenAIAPIVersion,
		cfg.AzureOpenAIChatDeploymentName,
		cfg.AzureOpenAIEmbeddingDeploymentName,
		embeddingDimension,
	)
	productSearchService := services.NewProductSearchService(cfg.SerperAPIKey)

	// QdrantはURLが設定されている場合のみ接続する（なくてもサーバーは動作する）
	var vectorStoreService *services.VectorStoreService
	if cfg.QdrantURL != "" {
		vectorStoreService, err = services.NewVectorStoreService(azureOpenAIService, cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			log.Printf("Warning: VectorStoreServiceの初期化に失敗しました。ベクトル保存は無効になります: %v", err)
			vectorStoreService = nil
		}
	}

	// ハンドラーの初期化
	receiptHandler := handlers.NewReceiptHandler(parserService, receiptStore, azureOpenAIService, vectorStoreService)
	forecastHandler := handlers.NewForecastHandler(receiptStore, forecastService, historicalTableService, trendService, azureOpenAIService)
	shoppingHandler := handlers.NewShoppingHandler(receiptStore, forecastService, productSearchService)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// 施工レポートAPI
		receipts := v1.Group("/receipts")
		{
			receipts.POST("/upload", receiptHandler.UploadReceipts)
			receipts.POST("/parse", receiptHandler.ParseReceipt)
			receipts.GET("", receiptHandler.ListReceipts)
			receipts.DELETE("", receiptHandler.ClearReceipts)
			receipts.POST("/embed", receiptHandler.EmbedNotes)
		}

		// 施工メモの類似検索API（Qdrantが設定されている場合のみ有効）
		v1.GET("/notes/search", receiptHandler.SearchNotes)

		// 予測・履歴API
		v1.GET("/forecast", forecastHandler.GetForecast)
		v1.POST("/forecast/explain", forecastHandler.ExplainForecast)
		v1.GET("/historical", forecastHandler.GetHistoricalTable)
		v1.GET("/historical/export", forecastHandler.ExportHistoricalTable)
		v1.GET("/trends", forecastHandler.GetTrends)

		// 購入リストAPI
		v1.POST("/shopping/search", shoppingHandler.SearchShoppingList)

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	log.Printf("Starting Lawn-AI API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
