package services

import (
	"lawn-ai-api/pkg/models"
)

// TrendService は施工メモの埋め込みベクトルから月ごとの傾向を計算します。
type TrendService struct{}

// NewTrendService は新しいTrendServiceを生成します。
func NewTrendService() *TrendService {
	return &TrendService{}
}

// ComputeMonthlyTrends は年月（"YYYY-MM"）ごとの埋め込みセントロイド
// （次元ごとの算術平均）を返します。対象はベクトルが付与済みかつ日付のある
// レコードのみです。レコード自身に付与されたベクトルを使うため、メモの有無で
// リストの対応がずれることはありません。
func (s *TrendService) ComputeMonthlyTrends(records []models.ReceiptRecord) map[string][]float32 {
	monthly := make(map[string][][]float32)

	for _, record := range records {
		if record.Date == "" || record.Embedding == nil {
			continue
		}
		monthKey := record.Date
		if len(monthKey) >= 7 {
			monthKey = monthKey[:7]
		}
		monthly[monthKey] = append(monthly[monthKey], record.Embedding)
	}

	trends := make(map[string][]float32, len(monthly))
	for monthKey, vectors := range monthly {
		trends[monthKey] = centroid(vectors)
	}
	return trends
}

// centroid はベクトル集合の次元ごとの平均を返します。
// 次元数は最初のベクトルに合わせ、短いベクトルの不足次元は0として扱います。
func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sums := make([]float64, dims)
	for _, vector := range vectors {
		for i := 0; i < dims && i < len(vector); i++ {
			sums[i] += float64(vector[i])
		}
	}
	result := make([]float32, dims)
	for i, sum := range sums {
		result[i] = float32(sum / float64(len(vectors)))
	}
	return result
}
