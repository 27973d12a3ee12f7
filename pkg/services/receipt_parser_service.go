package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"lawn-ai-api/pkg/models"
)

// 施工レポートのテキストに現れるラベル。製品ブロックの境界判定に使用します。
var productBoundaryLabels = []string{"RATE:", "PRODUCTS:", "METHOD:", "WHAT I", "APPLIED AMT:"}

var (
	notesRegex      = regexp.MustCompile(`(?is)WHAT I DID AND WHAT TO EXPECT\s*(.*?)\n\s*PRODUCTS APPLIED`)
	sqftRegex       = regexp.MustCompile(`(?i)(\d{3,5})\s*sqft`)
	methodRegex     = regexp.MustCompile(`(?i)METHOD:\s*(.*?)\n`)
	areasRegex      = regexp.MustCompile(`(?i)AREAS:\s*(.*?)\n`)
	dateRegex       = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
	appliedAmtRegex = regexp.MustCompile(`(?i)APPLIED AMT:\s*\n?\s*([\d.]+)\s+(FLOZ|OZ|GAL|LB)[\s/]`)
)

// ReceiptParserService は施工レポートの生テキストを構造化レコードに変換します。
// 各フィールドは独立したベストエフォート抽出であり、パターンが見つからない
// 場合はデフォルト値のまま返します。不正な入力でもエラーにはなりません。
type ReceiptParserService struct{}

// NewReceiptParserService は新しいReceiptParserServiceを生成します。
func NewReceiptParserService() *ReceiptParserService {
	return &ReceiptParserService{}
}

// ParseReceipt は1件のレポートテキストを解析してReceiptRecordを返します。
func (s *ReceiptParserService) ParseReceipt(filename, text string) models.ReceiptRecord {
	record := models.ReceiptRecord{
		Filename: filename,
		Products: []models.ProductApplication{},
	}

	// 施工メモ: "WHAT I DID AND WHAT TO EXPECT" と "PRODUCTS APPLIED" の間
	if m := notesRegex.FindStringSubmatch(text); m != nil {
		record.Notes = strings.TrimSpace(m[1])
	}

	// 敷地面積（3〜5桁 + sqft）
	if m := sqftRegex.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			record.PropertySqft = v
		}
	}

	// 施工方法と対象エリア
	if m := methodRegex.FindStringSubmatch(text); m != nil {
		record.Method = strings.TrimSpace(m[1])
	}
	if m := areasRegex.FindStringSubmatch(text); m != nil {
		record.Areas = strings.TrimSpace(m[1])
	}

	// 施工日: 最初の M/D/YYYY トークン。カレンダー上不正な日付は「なし」扱い
	if m := dateRegex.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("1/2/2006", m[1]); err == nil {
			record.Date = t.Format("2006-01-02")
		}
	}

	// 製品の抽出: レポートには製品ごとの区切りがないため、
	// "APPLIED AMT:" の出現位置をアンカーとして順番に走査します。
	record.Products, record.TotalVolume = s.extractProducts(text)

	return record
}

// extractProducts は "APPLIED AMT:" アンカーの列を走査して製品リストと総散布量を返します。
func (s *ReceiptParserService) extractProducts(text string) ([]models.ProductApplication, float64) {
	products := []models.ProductApplication{}
	totalVolume := 0.0

	matches := appliedAmtRegex.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range matches {
		amtValue, err := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		amtUnit := normalizeUnit(text[loc[4]:loc[5]])

		// 製品名はこのアンカーの直前にある "RATE:" ラベルから逆方向に探します。
		// "RATE:" が先行しない場合、このアンカーは製品として扱いません。
		ratePos := strings.LastIndex(text[:loc[0]], "RATE:")
		if ratePos == -1 {
			continue
		}

		// 前のアンカーの終端（最初のアンカーなら文書先頭）から "RATE:" までの
		// 範囲で、最後の非空行が製品名です。
		searchStart := 0
		if i > 0 {
			searchStart = matches[i-1][1]
		}
		prodName := lastNonBlankLine(text[searchStart:ratePos])
		if prodName == "" {
			continue
		}

		// 対象（targets）はアンカー以降の "TARGETS:" ラベルから次の境界ラベルまで
		targets := s.extractTargets(text[loc[1]:])

		products = append(products, models.ProductApplication{
			Name:          prodName,
			Rate:          0.0,
			AppliedAmount: amtValue,
			Unit:          amtUnit,
			Targets:       targets,
		})
		totalVolume += amtValue
	}

	return products, totalVolume
}

// extractTargets はアンカー以降のテキストから対象の説明を取り出します。
// "TARGETS:" ラベルの後、次の境界ラベルまでの範囲の最初の行を最大100文字で返します。
func (s *ReceiptParserService) extractTargets(textAfter string) string {
	upper := strings.ToUpper(textAfter)
	labelIdx := strings.Index(upper, "TARGETS:")
	if labelIdx == -1 {
		return ""
	}

	span := textAfter[labelIdx+len("TARGETS:"):]
	spanUpper := upper[labelIdx+len("TARGETS:"):]

	// 次の境界ラベルの位置で切り詰める（見つからなければ文書末尾まで）
	cut := len(span)
	for _, label := range productBoundaryLabels {
		if idx := strings.Index(spanUpper, label); idx != -1 && idx < cut {
			cut = idx
		}
	}

	targets := strings.TrimSpace(span[:cut])
	if targets == "" {
		return ""
	}

	// 複数行の場合は最初の行のみ採用
	if idx := strings.Index(targets, "\n"); idx != -1 {
		targets = targets[:idx]
	}
	return truncateRunes(targets, 100)
}

// normalizeUnit は単位を正規化します。ルールは FLOZ → OZ のみで、他はそのまま通します。
func normalizeUnit(unit string) string {
	u := strings.ToUpper(unit)
	if u == "FLOZ" {
		return "OZ"
	}
	return u
}

// lastNonBlankLine はテキスト中の最後の非空行をトリムして返します。
func lastNonBlankLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// truncateRunes は文字数ベースで文字列を切り詰めます。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
