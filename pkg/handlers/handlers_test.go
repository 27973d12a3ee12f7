package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lawn-ai-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReceiptText = `Service Date: 3/15/2023
AREAS: Front yard, Back yard
METHOD: Backpack sprayer
WHAT I DID AND WHAT TO EXPECT
Applied spring pre-emergent and fertilizer. Expect greening in 7 days.
PRODUCTS APPLIED
Nitrogen Blend 28-0-4
RATE: 2.0 oz per 1000 sqft
TARGETS: Turf growth and color
APPLIED AMT: 10.0 OZ / 5000 sqft
`

func newTestReceiptHandler() *ReceiptHandler {
	return NewReceiptHandler(
		services.NewReceiptParserService(),
		services.NewReceiptStore(),
		nil,
		nil,
	)
}

func TestHealthCheck(t *testing.T) {
	// Ginのテストモードに設定
	gin.SetMode(gin.TestMode)

	// ルーターを作成
	router := gin.New()
	router.GET("/health", HealthCheck)

	// テストリクエストを作成
	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	// レスポンスレコーダーを作成
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// ステータスコードを確認
	assert.Equal(t, http.StatusOK, w.Code)

	// JSONレスポンスに期待されるフィールドが含まれていることを確認
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "Lawn-AI API")
}

func TestParseReceiptEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestReceiptHandler()
	router := gin.New()
	router.POST("/api/v1/receipts/parse", handler.ParseReceipt)

	body, _ := json.Marshal(map[string]string{
		"filename": "2023-03-15.txt",
		"text":     testReceiptText,
	})

	req, err := http.NewRequest("POST", "/api/v1/receipts/parse", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2023-03-15")
	assert.Contains(t, w.Body.String(), "Nitrogen Blend 28-0-4")

	// ストアに追加されていることを確認
	assert.Equal(t, 1, handler.GetStore().Count())
}

func TestParseReceiptEndpointInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestReceiptHandler()
	router := gin.New()
	router.POST("/api/v1/receipts/parse", handler.ParseReceipt)

	req, _ := http.NewRequest("POST", "/api/v1/receipts/parse", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndClearReceipts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestReceiptHandler()
	router := gin.New()
	router.POST("/api/v1/receipts/parse", handler.ParseReceipt)
	router.GET("/api/v1/receipts", handler.ListReceipts)
	router.DELETE("/api/v1/receipts", handler.ClearReceipts)

	body, _ := json.Marshal(map[string]string{"text": testReceiptText})
	req, _ := http.NewRequest("POST", "/api/v1/receipts/parse", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// 一覧にレコードが1件含まれる
	req, _ = http.NewRequest("GET", "/api/v1/receipts", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Count)

	// クリア後は0件になる
	req, _ = http.NewRequest("DELETE", "/api/v1/receipts", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, handler.GetStore().Count())
}

func TestUploadReceiptsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestReceiptHandler()
	router := gin.New()
	router.POST("/api/v1/receipts/upload", handler.UploadReceipts)

	// multipartフォームを組み立てる（不正なファイルが混ざっても全体は止まらない）
	var buf bytes.Buffer
	mw := newMultipartWriter(&buf)
	require.NoError(t, mw.addFile("files", "2023-03-15.txt", testReceiptText))
	require.NoError(t, mw.addFile("files", "garbage.txt", "this is not a report"))
	contentType := mw.close()

	req, _ := http.NewRequest("POST", "/api/v1/receipts/upload", &buf)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success     bool `json:"success"`
		ParsedCount int  `json:"parsed_count"`
		TotalCount  int  `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.ParsedCount)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestUploadReceiptsRequiresFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestReceiptHandler()
	router := gin.New()
	router.POST("/api/v1/receipts/upload", handler.UploadReceipts)

	var buf bytes.Buffer
	mw := newMultipartWriter(&buf)
	contentType := mw.close()

	req, _ := http.NewRequest("POST", "/api/v1/receipts/upload", &buf)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// multipartWriter はアップロードテスト用のフォーム組み立てヘルパーです。
type multipartWriter struct {
	w *multipart.Writer
}

func newMultipartWriter(buf *bytes.Buffer) *multipartWriter {
	return &multipartWriter{w: multipart.NewWriter(buf)}
}

func (m *multipartWriter) addFile(field, filename, content string) error {
	part, err := m.w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(content))
	return err
}

func (m *multipartWriter) close() string {
	m.w.Close()
	return m.w.FormDataContentType()
}

func TestSearchNotesWithoutVectorStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Qdrant未設定のときは503
	handler := newTestReceiptHandler()
	router := gin.New()
	router.GET("/api/v1/notes/search", handler.SearchNotes)

	req, _ := http.NewRequest("GET", "/api/v1/notes/search?q=fertilizer", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func newTestForecastHandler(store *services.ReceiptStore) *ForecastHandler {
	return NewForecastHandler(
		store,
		services.NewForecastService(),
		services.NewHistoricalTableService(services.NewCategoryClassifier()),
		services.NewTrendService(),
		nil,
	)
}

func seededStore(t *testing.T) *services.ReceiptStore {
	t.Helper()
	store := services.NewReceiptStore()
	parser := services.NewReceiptParserService()
	store.Add(parser.ParseReceipt("2023-03-15.txt", testReceiptText))
	return store
}

func TestGetForecastEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(seededStore(t))
	router := gin.New()
	router.GET("/api/v1/forecast", handler.GetForecast)

	req, _ := http.NewRequest("GET", "/api/v1/forecast", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RecordCount int                        `json:"record_count"`
		Forecast    map[string]json.RawMessage `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.RecordCount)
	// 常に12スロット返る
	assert.Len(t, resp.Forecast, 12)
	assert.Contains(t, resp.Forecast, "Month_1")
	assert.Contains(t, resp.Forecast, "Month_12")
}

func TestGetHistoricalTableEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(seededStore(t))
	router := gin.New()
	router.GET("/api/v1/historical", handler.GetHistoricalTable)

	req, _ := http.NewRequest("GET", "/api/v1/historical", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2023-03")
	assert.Contains(t, w.Body.String(), "Fertilizer")
}

func TestExportHistoricalTableCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(seededStore(t))
	router := gin.New()
	router.GET("/api/v1/historical/export", handler.ExportHistoricalTable)

	req, _ := http.NewRequest("GET", "/api/v1/historical/export?format=csv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "historical_data.csv")

	// ヘッダ行とデータ行を確認
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Month,Date,"))
	assert.Contains(t, lines[0], "Total_Volume")
	assert.Contains(t, lines[1], "2023-03")
}

func TestExportHistoricalTableXLSX(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(seededStore(t))
	router := gin.New()
	router.GET("/api/v1/historical/export", handler.ExportHistoricalTable)

	req, _ := http.NewRequest("GET", "/api/v1/historical/export?format=xlsx", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestExportHistoricalTableInvalidFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(seededStore(t))
	router := gin.New()
	router.GET("/api/v1/historical/export", handler.ExportHistoricalTable)

	req, _ := http.NewRequest("GET", "/api/v1/historical/export?format=pdf", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHistoricalTableEmptyStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestForecastHandler(services.NewReceiptStore())
	router := gin.New()
	router.GET("/api/v1/historical/export", handler.ExportHistoricalTable)

	req, _ := http.NewRequest("GET", "/api/v1/historical/export", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTrendsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := seededStore(t)
	store.AttachEmbeddings([][]float32{{0.1, 0.2}})

	handler := newTestForecastHandler(store)
	router := gin.New()
	router.GET("/api/v1/trends", handler.GetTrends)

	req, _ := http.NewRequest("GET", "/api/v1/trends", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		MonthCount int                  `json:"month_count"`
		Trends     map[string][]float32 `json:"trends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.MonthCount)
	assert.Contains(t, resp.Trends, "2023-03")
}

func TestSearchShoppingListEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Serper APIのスタブ
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{
				{"title": "Store A", "link": "https://example.com/a", "snippet": "in stock"},
			},
		})
	}))
	defer stub.Close()

	searchService := services.NewProductSearchService("test-api-key")
	searchService.SetBaseURL(stub.URL)

	handler := NewShoppingHandler(seededStore(t), services.NewForecastService(), searchService)
	router := gin.New()
	router.POST("/api/v1/shopping/search", handler.SearchShoppingList)

	body, _ := json.Marshal(map[string]int{"limit_products": 5})
	req, _ := http.NewRequest("POST", "/api/v1/shopping/search", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Products []struct {
			Product string `json:"product"`
		} `json:"products"`
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalCount)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "Nitrogen Blend 28-0-4", resp.Products[0].Product)
}
