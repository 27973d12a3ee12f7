package services

import (
	"testing"

	"lawn-ai-api/pkg/models"

	"github.com/stretchr/testify/assert"
)

func newHistoricalTableService() *HistoricalTableService {
	return NewHistoricalTableService(NewCategoryClassifier())
}

func TestHistoricalTableRowPerYearMonth(t *testing.T) {
	service := newHistoricalTableService()

	records := []models.ReceiptRecord{
		makeRecord("2023-03-15", "march note", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 10.0, Unit: "OZ"}),
		makeRecord("2022-11-02", "november note", models.ProductApplication{Name: "Barricade 4FL", AppliedAmount: 2.5, Unit: "OZ"}),
		makeRecord("2023-03-28", "", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 4.0, Unit: "OZ"}),
	}

	table := service.GenerateHistoricalTable(records, nil)

	// 行数は異なる年月の数と一致し、昇順に並ぶ
	assert.Len(t, table.Table, 2)
	assert.Equal(t, "2022-11", table.Table[0].Month)
	assert.Equal(t, "2023-03", table.Table[1].Month)
	assert.Equal(t, 2, table.Summary.TotalRecords)
	assert.Equal(t, "2022-11 to 2023-03", table.Summary.DateRange)
}

func TestHistoricalTableSumsVolumesWithinMonth(t *testing.T) {
	service := newHistoricalTableService()

	// 同じ月の同じ製品は平均ではなく合計される
	records := []models.ReceiptRecord{
		makeRecord("2023-03-15", "", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 10.0, Unit: "OZ"}),
		makeRecord("2023-03-28", "", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 4.0, Unit: "OZ"}),
	}

	table := service.GenerateHistoricalTable(records, nil)

	assert.Len(t, table.Table, 1)
	row := table.Table[0]
	assert.Equal(t, 14.0, row.Products["Nitrogen Blend"].Volume)
	assert.Equal(t, 14.0, row.TotalVolume)
	assert.Equal(t, 2, row.CategoryCounts["Fertilizer"])
}

func TestHistoricalTableCategoryUnion(t *testing.T) {
	service := newHistoricalTableService()

	records := []models.ReceiptRecord{
		makeRecord("2023-03-15", "", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 10.0, Unit: "OZ"}),
		makeRecord("2023-06-01", "", models.ProductApplication{Name: "Talstar P", AppliedAmount: 2.0, Unit: "OZ"}),
		makeRecord("2023-09-01", "", models.ProductApplication{Name: "Unknown Thing", AppliedAmount: 1.0, Unit: "LB"}),
	}

	table := service.GenerateHistoricalTable(records, nil)

	// 全行のカテゴリの和集合がソート済みで返る
	assert.Equal(t, []string{"Fertilizer", "Insecticide", "Other"}, table.ProductCategories)
}

func TestHistoricalTableEmbeddingAssignment(t *testing.T) {
	service := newHistoricalTableService()

	records := []models.ReceiptRecord{
		makeRecord("2023-03-15", "march note"),
		makeRecord("2023-05-10", "may note"),
	}
	embeddings := [][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
	}

	table := service.GenerateHistoricalTable(records, embeddings)

	assert.Equal(t, "[3 dims]", table.Table[0].EmbeddingSummary)
	assert.Equal(t, "[3 dims]", table.Table[1].EmbeddingSummary)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, table.Embeddings["2023-03"])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, table.Embeddings["2023-05"])
	assert.Equal(t, 3, table.Summary.EmbeddingDimension)
}

func TestHistoricalTableEmptyNotesNeverConsumeEmbedding(t *testing.T) {
	service := newHistoricalTableService()

	// メモが空のレコードが月の初出でも、ベクトルは消費されない
	records := []models.ReceiptRecord{
		makeRecord("2023-03-15", ""),
		makeRecord("2023-05-10", "may note"),
	}
	embeddings := [][]float32{
		{0.4, 0.5, 0.6},
	}

	table := service.GenerateHistoricalTable(records, embeddings)

	assert.Equal(t, "N/A", table.Table[0].EmbeddingSummary)
	assert.Equal(t, "[3 dims]", table.Table[1].EmbeddingSummary)
	assert.NotContains(t, table.Embeddings, "2023-03")
}

func TestHistoricalTableEmbeddingListExhausted(t *testing.T) {
	service := newHistoricalTableService()

	// ベクトルのリストが短い場合、尽きた時点で割り当てを止める（エラーにならない）
	records := []models.ReceiptRecord{
		makeRecord("2023-01-05", "jan"),
		makeRecord("2023-02-05", "feb"),
		makeRecord("2023-03-05", "mar"),
	}
	embeddings := [][]float32{
		{1.0},
	}

	table := service.GenerateHistoricalTable(records, embeddings)

	assert.Equal(t, "[1 dims]", table.Table[0].EmbeddingSummary)
	assert.Equal(t, "N/A", table.Table[1].EmbeddingSummary)
	assert.Equal(t, "N/A", table.Table[2].EmbeddingSummary)
}

func TestHistoricalTableSkipsUndatedRecords(t *testing.T) {
	service := newHistoricalTableService()

	records := []models.ReceiptRecord{
		makeRecord("", "undated", models.ProductApplication{Name: "Talstar P", AppliedAmount: 3.0, Unit: "OZ"}),
		makeRecord("2023-04-01", "", models.ProductApplication{Name: "Nitrogen Blend", AppliedAmount: 1.0, Unit: "OZ"}),
	}

	table := service.GenerateHistoricalTable(records, nil)

	assert.Len(t, table.Table, 1)
	assert.Equal(t, "2023-04", table.Table[0].Month)
}

func TestHistoricalTableNotesPreview(t *testing.T) {
	service := newHistoricalTableService()

	notes := "line one\nline two  with  double  spaces"
	records := []models.ReceiptRecord{
		makeRecord("2023-08-01", notes),
	}

	table := service.GenerateHistoricalTable(records, nil)

	preview := table.Table[0].NotesPreview
	assert.NotContains(t, preview, "\n")
	assert.NotContains(t, preview, "  ")
	assert.LessOrEqual(t, len([]rune(preview)), 100)
}

func TestHistoricalTableEmptyInput(t *testing.T) {
	service := newHistoricalTableService()

	table := service.GenerateHistoricalTable(nil, nil)

	assert.Empty(t, table.Table)
	assert.Empty(t, table.ProductCategories)
	assert.Equal(t, 0, table.Summary.TotalRecords)
	assert.Empty(t, table.Summary.DateRange)
}
