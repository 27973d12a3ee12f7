package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"lawn-ai-api/pkg/models"
)

// monthlyAggregate は暦月名（"January" など）ごとの集計バケットです。
// 年をまたいで同じ月のレコードが1つのバケットに集まります。
type monthlyAggregate struct {
	products map[string]*productAggregate
	notes    []string // 日付降順で積まれるため、先頭が最新のメモ
}

// productAggregate は1バケット内の1製品の集計です。
type productAggregate struct {
	volumes []float64
	unit    string // バケット内で最初に観測した値を保持
	targets string
}

// ForecastService は施工履歴から年間12スロットの散布予測を計算します。
type ForecastService struct{}

// NewForecastService は新しいForecastServiceを生成します。
func NewForecastService() *ForecastService {
	return &ForecastService{}
}

// ForecastNextYear は全レコードから Month_1..Month_12 の予測を生成します。
// 入力にどの月が含まれていても必ず12スロットすべてを返します。
// 日付のないレコードは月のグルーピングから除外されます。
func (s *ForecastService) ForecastNextYear(records []models.ReceiptRecord) map[string]models.ForecastEntry {
	// 日付降順にソート（最新のメモを安定して選ぶため）。
	// 元のスライスを変更しないようコピーして扱います。
	sorted := make([]models.ReceiptRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date > sorted[j].Date
	})

	// 暦月名ごとに集計
	monthlyData := make(map[string]*monthlyAggregate)
	for _, record := range sorted {
		if record.Date == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", record.Date)
		if err != nil {
			continue
		}
		monthKey := t.Month().String() // "January" など

		bucket, ok := monthlyData[monthKey]
		if !ok {
			bucket = &monthlyAggregate{products: make(map[string]*productAggregate)}
			monthlyData[monthKey] = bucket
		}

		if record.Notes != "" {
			bucket.notes = append(bucket.notes, record.Notes)
		}

		for _, product := range record.Products {
			agg, ok := bucket.products[product.Name]
			if !ok {
				agg = &productAggregate{
					unit:    product.Unit,
					targets: product.Targets,
				}
				bucket.products[product.Name] = agg
			}
			agg.volumes = append(agg.volumes, product.AppliedAmount)
		}
	}

	// 12スロットを1月から順に出力。履歴のない月は空のエントリになります。
	forecast := make(map[string]models.ForecastEntry, 12)
	for i := 1; i <= 12; i++ {
		monthKey := fmt.Sprintf("Month_%d", i)
		entry := models.ForecastEntry{
			Products: make(map[string]models.ForecastProduct),
		}

		if bucket, ok := monthlyData[time.Month(i).String()]; ok {
			if len(bucket.notes) > 0 {
				entry.Notes = bucket.notes[0]
			}
			for prodName, agg := range bucket.products {
				if len(agg.volumes) == 0 {
					continue
				}
				entry.Products[prodName] = models.ForecastProduct{
					Volume:  round4(mean(agg.volumes)),
					Unit:    agg.unit,
					Targets: agg.targets,
				}
			}
		}

		forecast[monthKey] = entry
	}

	return forecast
}

// mean は値リストの算術平均を返します。
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// round4 は小数点以下4桁に丸めます。
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
