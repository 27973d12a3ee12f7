package services

import "strings"

// productCategory は1カテゴリとそのキーワードリストです。
type productCategory struct {
	Name     string
	Keywords []string
}

// CategoryClassifier は製品名を固定カテゴリに分類します。
// カテゴリは優先順に評価され、最初にキーワードが一致したものが採用されます。
// キーワード集合は重複するため（例: "iron" は Fertilizer にも含まれる）、
// この順序が分類結果を決定します。多数決ではありません。
type CategoryClassifier struct {
	categories []productCategory
}

// NewCategoryClassifier は新しいCategoryClassifierを生成します。
func NewCategoryClassifier() *CategoryClassifier {
	return &CategoryClassifier{
		categories: []productCategory{
			{
				Name:     "Fertilizer",
				Keywords: []string{"nitrogen", "potash", "phosphorus", "sulfur", "scu", "ubm", "iron"},
			},
			{
				Name: "Weed Control",
				Keywords: []string{
					"weed", "manor", "atrazine", "certainty", "herbicide", "dicamba",
					"mcpa", "mecoprop", "sulfosulfuron", "prodiamine", "indaziflam",
					"halosulfuron", "celsius", "change up", "barricade", "specticle",
				},
			},
			{
				Name:     "Iron/Micronutrient",
				Keywords: []string{"iron", "spt iron"},
			},
			{
				Name:     "Sulfur",
				Keywords: []string{"sulfur", "dispersable"},
			},
			{
				Name: "Insecticide",
				Keywords: []string{
					"insect", "talstar", "bifenthrin", "acelepryn",
					"thiamethoxam", "chlorantraniliprole",
				},
			},
			{
				Name:     "Surfactant",
				Keywords: []string{"surfactant", "non-ionic"},
			},
		},
	}
}

// Classify は製品名からカテゴリ名を返します。どのキーワードにも一致しない場合は "Other" です。
func (c *CategoryClassifier) Classify(productName string) string {
	nameLower := strings.ToLower(productName)
	for _, category := range c.categories {
		for _, keyword := range category.Keywords {
			if strings.Contains(nameLower, keyword) {
				return category.Name
			}
		}
	}
	return "Other"
}
