package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"lawn-ai-api/pkg/models"
)

const defaultSerperBaseURL = "https://google.serper.dev"

// ProductSearchService は予測に含まれる製品を外部検索API（Serper）で検索します。
// レート制限用のカウンタはサービスのインスタンス状態として保持します。
type ProductSearchService struct {
	apiKey               string
	baseURL              string
	httpClient           *http.Client
	mu                   sync.Mutex
	requestCount         int
	maxRequestsPerMinute int
	windowStart          time.Time
}

// NewProductSearchService は新しいProductSearchServiceを生成します。
func NewProductSearchService(apiKey string) *ProductSearchService {
	return &ProductSearchService{
		apiKey:               apiKey,
		baseURL:              defaultSerperBaseURL,
		httpClient:           &http.Client{Timeout: 30 * time.Second},
		maxRequestsPerMinute: 60,
		windowStart:          time.Now(),
	}
}

// SetBaseURL は検索APIのベースURLを差し替えます（テスト用）。
func (s *ProductSearchService) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimSuffix(baseURL, "/")
}

// serperRequest Serper APIへの検索リクエスト
type serperRequest struct {
	Query      string `json:"q"`
	NumResults int    `json:"num"`
	Geo        string `json:"gl"`
}

// serperResponse Serper APIの検索レスポンス（必要なフィールドのみ）
type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// SanitizeProductName は検索クエリに使えない文字を製品名から除去します。
func SanitizeProductName(name string) string {
	name = strings.TrimSpace(name)
	dangerous := []string{"$(", "$", "`", "{", "}", "|", "&", ";", "<", ">"}
	for _, ch := range dangerous {
		name = strings.ReplaceAll(name, ch, "")
	}
	return name
}

// SearchProduct は1製品を検索して購入候補を返します。
func (s *ProductSearchService) SearchProduct(ctx context.Context, productName string, quantity float64, unit string) (models.ShoppingResult, error) {
	result := models.ShoppingResult{
		Product:       productName,
		Quantity:      quantity,
		Unit:          unit,
		SearchResults: []models.ShoppingListItem{},
	}

	if s.apiKey == "" {
		return result, fmt.Errorf("Serper API key が設定されていません")
	}

	// レート制限チェック（1分ごとのウィンドウでカウンタをリセット）
	if err := s.checkRateLimit(); err != nil {
		return result, err
	}

	query := fmt.Sprintf("%s %s lawn care", SanitizeProductName(productName), unit)
	payload := serperRequest{
		Query:      query,
		NumResults: 5,
		Geo:        "us",
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/search", bytes.NewBuffer(requestBody))
	if err != nil {
		return result, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("検索APIの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusUnauthorized:
		return result, fmt.Errorf("Serper API key が無効です")
	case http.StatusTooManyRequests:
		return result, fmt.Errorf("検索APIのレート制限を超過しました")
	default:
		return result, fmt.Errorf("検索APIエラー (status: %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	var searchResp serperResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return result, fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}

	// 上位3件のみ採用し、各フィールドは長さを制限する
	for i, organic := range searchResp.Organic {
		if i >= 3 {
			break
		}
		if organic.Title == "" || organic.Link == "" {
			continue
		}
		result.SearchResults = append(result.SearchResults, models.ShoppingListItem{
			Title:   truncateRunes(organic.Title, 200),
			URL:     truncateRunes(organic.Link, 500),
			Snippet: truncateRunes(organic.Snippet, 300),
		})
	}

	return result, nil
}

// BuildShoppingList は年間予測から製品を抽出し、1製品ずつ検索して購入リストを作ります。
// 個々の製品の検索失敗はエラーリストに記録し、処理全体は続行します。
func (s *ProductSearchService) BuildShoppingList(ctx context.Context, forecast map[string]models.ForecastEntry, limit int) models.ShoppingList {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	shoppingList := models.ShoppingList{
		Products: []models.ShoppingResult{},
		Errors:   []models.ShoppingError{},
	}

	// Month_1..Month_12 の順で製品を取り出す（件数上限あり）
	type candidate struct {
		name     string
		quantity float64
		unit     string
	}
	var candidates []candidate

	for i := 1; i <= 12 && len(candidates) < limit; i++ {
		entry, ok := forecast[fmt.Sprintf("Month_%d", i)]
		if !ok {
			continue
		}
		// マップの反復順は不定なので、製品名でソートして安定させる
		names := make([]string, 0, len(entry.Products))
		for name := range entry.Products {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if len(candidates) >= limit {
				break
			}
			product := entry.Products[name]
			candidates = append(candidates, candidate{
				name:     name,
				quantity: product.Volume,
				unit:     product.Unit,
			})
		}
	}

	shoppingList.TotalCount = len(candidates)

	for _, c := range candidates {
		result, err := s.SearchProduct(ctx, c.name, c.quantity, c.unit)
		if err != nil {
			shoppingList.Errors = append(shoppingList.Errors, models.ShoppingError{
				Product: c.name,
				Error:   err.Error(),
			})
			continue
		}
		shoppingList.Products = append(shoppingList.Products, result)
	}

	return shoppingList
}

// checkRateLimit はリクエスト数が上限以内かを確認してカウンタを進めます。
func (s *ProductSearchService) checkRateLimit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.windowStart) >= time.Minute {
		s.windowStart = time.Now()
		s.requestCount = 0
	}
	if s.requestCount >= s.maxRequestsPerMinute {
		return fmt.Errorf("レート制限超過: 1分あたりのリクエスト数が上限に達しました")
	}
	s.requestCount++
	return nil
}
