package handlers

import (
	"net/http"

	"lawn-ai-api/pkg/models"
	"lawn-ai-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ShoppingHandler は予測に基づく製品購入リスト作成のハンドラです。
type ShoppingHandler struct {
	store                *services.ReceiptStore
	forecastService      *services.ForecastService
	productSearchService *services.ProductSearchService
}

// NewShoppingHandler は新しいShoppingHandlerを生成します。
func NewShoppingHandler(
	store *services.ReceiptStore,
	forecastService *services.ForecastService,
	productSearchService *services.ProductSearchService,
) *ShoppingHandler {
	return &ShoppingHandler{
		store:                store,
		forecastService:      forecastService,
		productSearchService: productSearchService,
	}
}

// SearchShoppingList は年間予測の製品を外部検索して購入リストを返します。
func (sh *ShoppingHandler) SearchShoppingList(c *gin.Context) {
	var req models.ShoppingSearchRequest
	// ボディは省略可能（デフォルトの上限で検索する）
	_ = c.ShouldBindJSON(&req)

	forecast := sh.forecastService.ForecastNextYear(sh.store.List())
	shoppingList := sh.productSearchService.BuildShoppingList(c.Request.Context(), forecast, req.LimitProducts)

	c.JSON(http.StatusOK, shoppingList)
}
