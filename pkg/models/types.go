package models

// ProductApplication は1回の施工で散布された1つの製品を表します。
type ProductApplication struct {
	Name          string  `json:"name"`           // 製品名（レポート記載のまま）
	Rate          float64 `json:"rate"`           // 規定散布レート（この抽出経路では常に0.0）
	AppliedAmount float64 `json:"applied_amount"` // 実際の散布量
	Unit          string  `json:"unit"`           // 正規化済み単位（FLOZはOZに統一）
	Targets       string  `json:"targets"`        // 対象（雑草・害虫など）の説明、最大100文字
}

// ReceiptRecord は1件の施工レポートを解析した結果です。
// TotalVolume は常に Products の AppliedAmount の合計として再計算されます。
type ReceiptRecord struct {
	Filename     string               `json:"filename"`
	Date         string               `json:"date,omitempty"` // "2006-01-02" 形式。日付が見つからない場合は空
	Notes        string               `json:"notes"`
	Products     []ProductApplication `json:"products"`
	TotalVolume  float64              `json:"total_volume"`
	PropertySqft int                  `json:"property_sqft"`
	Method       string               `json:"method"`
	Areas        string               `json:"areas"`
	Embedding    []float32            `json:"embedding,omitempty"` // Notesが空でない場合のみ後から付与
}

// ForecastProduct は予測スロット内の1製品の予測値です。
type ForecastProduct struct {
	Volume  float64 `json:"volume"` // 過去実績の平均（小数点以下4桁）
	Unit    string  `json:"unit"`
	Targets string  `json:"targets"`
}

// ForecastEntry は年間予測の1スロット（1ヶ月分）です。
type ForecastEntry struct {
	Products map[string]ForecastProduct `json:"products"`
	Notes    string                     `json:"notes"` // その月の最新の施工メモ
}

// HistoricalProduct は履歴テーブル内の1製品の月間集計です。
type HistoricalProduct struct {
	Volume   float64 `json:"volume"` // 同月内の散布量の合計
	Unit     string  `json:"unit"`
	Category string  `json:"category"`
}

// HistoricalRow は履歴テーブルの1行（1つの年月）です。
type HistoricalRow struct {
	Month            string                       `json:"month"` // "YYYY-MM"
	Date             string                       `json:"date"`  // その月で最初に出現したレコードの日付
	Products         map[string]HistoricalProduct `json:"products"`
	CategoryCounts   map[string]int               `json:"category_counts"`
	TotalVolume      float64                      `json:"total_volume"`
	NotesPreview     string                       `json:"notes_preview"`     // 最初の100文字、改行と二重スペースを除去
	EmbeddingSummary string                       `json:"embedding_summary"` // "[N dims]" または "N/A"
}

// HistoricalSummary は履歴テーブル全体のメタ情報です。
type HistoricalSummary struct {
	TotalRecords       int    `json:"total_records"` // 行数（= 異なる年月の数）
	DateRange          string `json:"date_range"`    // "YYYY-MM to YYYY-MM"
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// HistoricalTable は履歴テーブルの出力全体です。
type HistoricalTable struct {
	Table             []HistoricalRow      `json:"table"`
	ProductCategories []string             `json:"product_categories"` // 全行のカテゴリの和集合（ソート済み）
	Embeddings        map[string][]float32 `json:"embeddings"`         // 年月 -> その月に割り当てられたベクトル
	Summary           HistoricalSummary    `json:"summary"`
}

// ParseReceiptRequest は単一レポートの解析リクエストです。
type ParseReceiptRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text" binding:"required"`
}

// ShoppingSearchRequest は予測に基づく製品検索のリクエストです。
type ShoppingSearchRequest struct {
	LimitProducts int `json:"limit_products"` // 検索する製品数の上限（デフォルト10、最大100）
}

// ShoppingResult は1製品分の検索結果です。
type ShoppingResult struct {
	Product       string             `json:"product"`
	Quantity      float64            `json:"quantity"`
	Unit          string             `json:"unit"`
	SearchResults []ShoppingListItem `json:"search_results"`
}

// ShoppingListItem は外部検索APIから取得した1件の候補です。
type ShoppingListItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ShoppingError は検索に失敗した製品の情報です。処理全体は中断しません。
type ShoppingError struct {
	Product string `json:"product"`
	Error   string `json:"error"`
}

// ShoppingList は予測全体に対する検索結果のまとめです。
type ShoppingList struct {
	Products   []ShoppingResult `json:"products"`
	TotalCount int              `json:"total_count"`
	Errors     []ShoppingError  `json:"errors"`
}
