package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lawn-ai-api/pkg/models"
	"lawn-ai-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ForecastHandler は年間予測と履歴テーブルのハンドラです。
type ForecastHandler struct {
	store                  *services.ReceiptStore
	forecastService        *services.ForecastService
	historicalTableService *services.HistoricalTableService
	trendService           *services.TrendService
	azureOpenAIService     *services.AzureOpenAIService
}

// NewForecastHandler は新しいForecastHandlerを生成します。
func NewForecastHandler(
	store *services.ReceiptStore,
	forecastService *services.ForecastService,
	historicalTableService *services.HistoricalTableService,
	trendService *services.TrendService,
	azureOpenAIService *services.AzureOpenAIService,
) *ForecastHandler {
	return &ForecastHandler{
		store:                  store,
		forecastService:        forecastService,
		historicalTableService: historicalTableService,
		trendService:           trendService,
		azureOpenAIService:     azureOpenAIService,
	}
}

// GetForecast は Month_1..Month_12 の年間散布予測を返します。
func (fh *ForecastHandler) GetForecast(c *gin.Context) {
	forecast := fh.forecastService.ForecastNextYear(fh.store.List())
	c.JSON(http.StatusOK, gin.H{
		"record_count": fh.store.Count(),
		"forecast":     forecast,
	})
}

// ExplainForecast は年間予測のAIによる説明文を返します。
func (fh *ForecastHandler) ExplainForecast(c *gin.Context) {
	forecast := fh.forecastService.ForecastNextYear(fh.store.List())

	explanation, err := fh.azureOpenAIService.ExplainForecast(c.Request.Context(), forecast)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "予測の説明生成に失敗しました: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"explanation": explanation,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

// GetHistoricalTable はカテゴリ別の月次履歴テーブルを返します。
func (fh *ForecastHandler) GetHistoricalTable(c *gin.Context) {
	records := fh.store.List()
	table := fh.historicalTableService.GenerateHistoricalTable(records, fh.store.AttachedEmbeddings())
	c.JSON(http.StatusOK, table)
}

// GetTrends は年月ごとの施工メモ埋め込みのセントロイドを返します。
func (fh *ForecastHandler) GetTrends(c *gin.Context) {
	trends := fh.trendService.ComputeMonthlyTrends(fh.store.List())
	c.JSON(http.StatusOK, gin.H{
		"month_count": len(trends),
		"trends":      trends,
	})
}

// ExportHistoricalTable は履歴テーブルをCSVまたはXLSX形式でダウンロードさせます。
func (fh *ForecastHandler) ExportHistoricalTable(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("無効な形式です: %s。'csv' または 'xlsx' を指定してください。", format)})
		return
	}

	table := fh.historicalTableService.GenerateHistoricalTable(fh.store.List(), fh.store.AttachedEmbeddings())
	if len(table.Table) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "エクスポートできる履歴データがありません。"})
		return
	}

	header := historicalHeader(table)

	switch format {
	case "csv":
		data, err := writeHistoricalCSV(table, header)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "CSVの生成に失敗しました。"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="historical_data.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
	case "xlsx":
		data, err := writeHistoricalXLSX(table, header)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelファイルの生成に失敗しました。"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="historical_data.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

// historicalHeader はエクスポート用のヘッダ行を組み立てます。
// カテゴリ列は全行の和集合（ソート済み）から決まります。
func historicalHeader(table models.HistoricalTable) []string {
	header := []string{"Month", "Date"}
	header = append(header, table.ProductCategories...)
	header = append(header, "Total_Volume", "Embedding_Summary", "Notes_Preview")
	return header
}

// historicalRowValues は1行分の値をヘッダ順の文字列スライスに変換します。
func historicalRowValues(row models.HistoricalRow, categories []string) []string {
	values := []string{row.Month, row.Date}
	for _, category := range categories {
		values = append(values, strconv.Itoa(row.CategoryCounts[category]))
	}
	values = append(values,
		strconv.FormatFloat(row.TotalVolume, 'f', -1, 64),
		row.EmbeddingSummary,
		row.NotesPreview,
	)
	return values
}

// writeHistoricalCSV は履歴テーブルをCSVバイト列に変換します。
func writeHistoricalCSV(table models.HistoricalTable, header []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range table.Table {
		if err := w.Write(historicalRowValues(row, table.ProductCategories)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeHistoricalXLSX は履歴テーブルをExcelワークブックに変換します。
func writeHistoricalXLSX(table models.HistoricalTable, header []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return nil, err
	}

	for i, row := range table.Table {
		values := historicalRowValues(row, table.ProductCategories)
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
