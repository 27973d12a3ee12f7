package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"lawn-ai-api/pkg/models"
)

// historicalMonth は1つの年月（"YYYY-MM"）の集計途中データです。
type historicalMonth struct {
	date           string
	products       map[string]models.HistoricalProduct
	categoryCounts map[string]int
	notes          string
	embedding      []float32
	volumeTotal    float64
}

// HistoricalTableService は施工履歴からカテゴリ別の月次サマリーテーブルを生成します。
type HistoricalTableService struct {
	classifier *CategoryClassifier
}

// NewHistoricalTableService は新しいHistoricalTableServiceを生成します。
func NewHistoricalTableService(classifier *CategoryClassifier) *HistoricalTableService {
	return &HistoricalTableService{
		classifier: classifier,
	}
}

// GenerateHistoricalTable は全レコードと埋め込みベクトルから履歴テーブルを生成します。
// レコードは与えられた順に走査し、日付のないものは行を構成しません。
// 埋め込みベクトルは「新しい年月が初めて出現し、かつそのレコードのメモが空でない」
// 場合にのみ出現順で1つ消費します。リストが尽きたら以降は割り当てません。
func (s *HistoricalTableService) GenerateHistoricalTable(records []models.ReceiptRecord, embeddings [][]float32) models.HistoricalTable {
	historical := make(map[string]*historicalMonth)
	embeddingIdx := 0

	for _, record := range records {
		if record.Date == "" {
			continue
		}
		// "2006-01-02" 形式から年月キーを導出
		monthKey := record.Date
		if len(monthKey) >= 7 {
			monthKey = monthKey[:7]
		}

		month, ok := historical[monthKey]
		if !ok {
			// この年月の最初のレコード。メモがあれば埋め込みを1つ割り当てます。
			var embedding []float32
			if strings.TrimSpace(record.Notes) != "" && embeddingIdx < len(embeddings) {
				embedding = embeddings[embeddingIdx]
				embeddingIdx++
			}
			month = &historicalMonth{
				date:           record.Date,
				products:       make(map[string]models.HistoricalProduct),
				categoryCounts: make(map[string]int),
				notes:          record.Notes,
				embedding:      embedding,
			}
			historical[monthKey] = month
		}

		for _, product := range record.Products {
			category := s.classifier.Classify(product.Name)

			if existing, ok := month.products[product.Name]; ok {
				existing.Volume += product.AppliedAmount
				month.products[product.Name] = existing
			} else {
				month.products[product.Name] = models.HistoricalProduct{
					Volume:   product.AppliedAmount,
					Unit:     product.Unit,
					Category: category,
				}
			}

			month.categoryCounts[category]++
			month.volumeTotal += product.AppliedAmount
		}
	}

	// 年月キーを昇順に並べる
	monthKeys := make([]string, 0, len(historical))
	for key := range historical {
		monthKeys = append(monthKeys, key)
	}
	sort.Strings(monthKeys)

	// 全行で使われたカテゴリの和集合（テーブル出力の列ヘッダになる）
	categorySet := make(map[string]bool)
	for _, month := range historical {
		for category := range month.categoryCounts {
			categorySet[category] = true
		}
	}
	allCategories := make([]string, 0, len(categorySet))
	for category := range categorySet {
		allCategories = append(allCategories, category)
	}
	sort.Strings(allCategories)

	table := models.HistoricalTable{
		Table:             make([]models.HistoricalRow, 0, len(monthKeys)),
		ProductCategories: allCategories,
		Embeddings:        make(map[string][]float32),
	}

	for _, key := range monthKeys {
		month := historical[key]

		summary := "N/A"
		if month.embedding != nil {
			summary = fmt.Sprintf("[%d dims]", len(month.embedding))
			table.Embeddings[key] = month.embedding
		}

		table.Table = append(table.Table, models.HistoricalRow{
			Month:            key,
			Date:             month.date,
			Products:         month.products,
			CategoryCounts:   month.categoryCounts,
			TotalVolume:      math.Round(month.volumeTotal*100) / 100,
			NotesPreview:     notesPreview(month.notes),
			EmbeddingSummary: summary,
		})
	}

	table.Summary = models.HistoricalSummary{
		TotalRecords: len(monthKeys),
	}
	if len(monthKeys) > 0 {
		table.Summary.DateRange = fmt.Sprintf("%s to %s", monthKeys[0], monthKeys[len(monthKeys)-1])
	}
	if len(embeddings) > 0 {
		table.Summary.EmbeddingDimension = len(embeddings[0])
	}

	return table
}

// notesPreview はメモの先頭100文字を1行に整形して返します。
func notesPreview(notes string) string {
	preview := truncateRunes(notes, 100)
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "  ", " ")
	return preview
}
