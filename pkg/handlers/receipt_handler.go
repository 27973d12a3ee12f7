package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lawn-ai-api/pkg/models"
	"lawn-ai-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ReceiptHandler は施工レポートの取り込みと解析のハンドラです。
type ReceiptHandler struct {
	parserService      *services.ReceiptParserService
	store              *services.ReceiptStore
	azureOpenAIService *services.AzureOpenAIService
	vectorStoreService *services.VectorStoreService
}

// NewReceiptHandler は新しいReceiptHandlerを生成します。
// vectorStoreService はQdrantが設定されていない場合 nil を許容します。
func NewReceiptHandler(
	parserService *services.ReceiptParserService,
	store *services.ReceiptStore,
	azureOpenAIService *services.AzureOpenAIService,
	vectorStoreService *services.VectorStoreService,
) *ReceiptHandler {
	return &ReceiptHandler{
		parserService:      parserService,
		store:              store,
		azureOpenAIService: azureOpenAIService,
		vectorStoreService: vectorStoreService,
	}
}

// GetStore は内部のReceiptStoreを返します。
func (rh *ReceiptHandler) GetStore() *services.ReceiptStore {
	return rh.store
}

// HealthCheck はサービスの稼働状態を返します。
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "Lawn-AI API",
	})
}

// UploadReceipts はmultipartでアップロードされたレポートテキストを一括で解析します。
// 1件の不正なドキュメントは空フィールドのレコードに縮退するだけで、
// バッチ全体は中断しません。
func (rh *ReceiptHandler) UploadReceipts(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil { // 10MB limit
		c.JSON(http.StatusBadRequest, gin.H{"error": "マルチパートフォームの解析に失敗しました。"})
		return
	}

	form := c.Request.MultipartForm
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files フィールドにファイルが含まれていません。"})
		return
	}

	parsed := make([]models.ReceiptRecord, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			log.Printf("⚠️ ファイルを開けませんでした: %s: %v", fileHeader.Filename, err)
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			log.Printf("⚠️ ファイルの読み取りに失敗しました: %s: %v", fileHeader.Filename, err)
			continue
		}

		text := string(data)
		if strings.TrimSpace(text) == "" {
			log.Printf("⚠️ 空のレポートテキストを検出: %s", fileHeader.Filename)
		}

		record := rh.parserService.ParseReceipt(filepath.Base(fileHeader.Filename), text)
		logRecordWarnings(record)

		rh.store.Add(record)
		parsed = append(parsed, record)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"parsed_count": len(parsed),
		"total_count":  rh.store.Count(),
		"records":      parsed,
	})
}

// ParseReceipt は単一のレポートテキストを解析してストアに追加します。
func (rh *ReceiptHandler) ParseReceipt(c *gin.Context) {
	var req models.ParseReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text フィールドは必須です。"})
		return
	}

	filename := req.Filename
	if filename == "" {
		filename = "untitled.txt"
	}

	record := rh.parserService.ParseReceipt(filename, req.Text)
	logRecordWarnings(record)
	rh.store.Add(record)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"record":  record,
	})
}

// ListReceipts は解析済みレコードの一覧を返します。
func (rh *ReceiptHandler) ListReceipts(c *gin.Context) {
	records := rh.store.List()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// ClearReceipts は解析済みレコードをすべて破棄します。
func (rh *ReceiptHandler) ClearReceipts(c *gin.Context) {
	rh.store.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// EmbedNotes はメモを持つ全レコードの埋め込みベクトルを生成して付与します。
// Qdrantが設定されている場合は、あわせてベクトルストアにも保存します。
func (rh *ReceiptHandler) EmbedNotes(c *gin.Context) {
	notes := rh.store.NoteTexts()
	if len(notes) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"embedded_count": 0,
			"message":        "メモを持つレコードがありません。",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 120*time.Second)
	defer cancel()

	embeddings, err := rh.azureOpenAIService.EmbedTexts(ctx, notes)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "埋め込みベクトルの生成に失敗しました: " + err.Error()})
		return
	}

	attached := rh.store.AttachEmbeddings(embeddings)

	// ベクトルストアへのミラーリングはベストエフォート。失敗しても付与自体は成功扱い。
	stored := 0
	if rh.vectorStoreService != nil {
		idx := 0
		for _, record := range rh.store.List() {
			if strings.TrimSpace(record.Notes) == "" || idx >= len(embeddings) {
				continue
			}
			metadata := map[string]interface{}{
				"filename": record.Filename,
				"date":     record.Date,
			}
			if err := rh.vectorStoreService.SaveNote(ctx, embeddings[idx], record.Notes, metadata); err != nil {
				log.Printf("⚠️ Qdrantへの保存に失敗しました (%s): %v", record.Filename, err)
			} else {
				stored++
			}
			idx++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"embedded_count": attached,
		"stored_count":   stored,
	})
}

// SearchNotes は過去の施工メモをクエリテキストとの類似度で検索します。
// Qdrantが設定されていない場合は503を返します。
func (rh *ReceiptHandler) SearchNotes(c *gin.Context) {
	if rh.vectorStoreService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ベクトルストアが設定されていません。"})
		return
	}

	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "クエリパラメータ q は必須です。"})
		return
	}

	topK := uint64(5)
	if v, err := strconv.ParseUint(c.DefaultQuery("top_k", "5"), 10, 64); err == nil && v > 0 {
		topK = v
	}

	points, err := rh.vectorStoreService.SearchNotes(c.Request.Context(), query, topK)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "施工メモの検索に失敗しました: " + err.Error()})
		return
	}

	results := make([]gin.H, 0, len(points))
	for _, point := range points {
		results = append(results, gin.H{
			"score":    point.GetScore(),
			"text":     services.GetNotePayloadString(point.GetPayload(), "text"),
			"filename": services.GetNotePayloadString(point.GetPayload(), "filename"),
			"date":     services.GetNotePayloadString(point.GetPayload(), "date"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// logRecordWarnings は元のパイプラインと同様に、解析結果の欠落をログで知らせます。
func logRecordWarnings(record models.ReceiptRecord) {
	if strings.TrimSpace(record.Notes) == "" {
		log.Printf("⚠️ 解析後のメモが空です: %s", record.Filename)
	}
	if record.TotalVolume == 0.0 {
		log.Printf("⚠️ 散布量を検出できませんでした: %s", record.Filename)
	}
	if len(record.Products) == 0 {
		log.Printf("⚠️ 製品を検出できませんでした: %s", record.Filename)
	}
	if record.Date == "" {
		log.Printf("⚠️ 施工日を検出できませんでした: %s", record.Filename)
	}
}
