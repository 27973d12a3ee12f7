package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lawn-ai-api/pkg/azure"
	"lawn-ai-api/pkg/models"
)

// ChatMessage はAzureパッケージの型を再エクスポートしたものです。
type ChatMessage = azure.ChatMessage

// AzureOpenAIService はAzure OpenAIを使った埋め込み生成とチャット補完を提供します。
type AzureOpenAIService struct {
	client             *azure.OpenAIClient
	embeddingDimension int
}

// NewAzureOpenAIService は新しいAzureOpenAIServiceを初期化して返します。
func NewAzureOpenAIService(endpoint, apiKey, apiVersion, chatDeploymentName, embeddingDeploymentName string, embeddingDimension int) *AzureOpenAIService {
	return &AzureOpenAIService{
		client:             azure.NewOpenAIClient(endpoint, apiKey, apiVersion, chatDeploymentName, embeddingDeploymentName),
		embeddingDimension: embeddingDimension,
	}
}

// EmbeddingDimension は埋め込みベクトルの次元数を返します。
func (aos *AzureOpenAIService) EmbeddingDimension() int {
	return aos.embeddingDimension
}

// CreateEmbedding はテキストのベクトル表現を生成します。
func (aos *AzureOpenAIService) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return aos.client.CreateEmbedding(ctx, text)
}

// EmbedTexts は複数テキストのベクトル表現をまとめて生成します。
// 入力が空文字列（または空白のみ）の場合はAPIを呼ばず、ゼロベクトルを返します。
// 1件でもAPI呼び出しに失敗した場合はエラーを返します。
func (aos *AzureOpenAIService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			embeddings = append(embeddings, make([]float32, aos.embeddingDimension))
			continue
		}
		vector, err := aos.client.CreateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("テキスト %d 件目のベクトル化に失敗: %w", i+1, err)
		}
		embeddings = append(embeddings, vector)
	}
	return embeddings, nil
}

// ExplainForecast は年間予測をもとに施工計画の説明文を生成します。
func (aos *AzureOpenAIService) ExplainForecast(ctx context.Context, forecast map[string]models.ForecastEntry) (string, error) {
	forecastJSON, err := json.Marshal(forecast)
	if err != nil {
		return "", fmt.Errorf("予測データのJSON化に失敗: %w", err)
	}

	messages := []ChatMessage{
		{
			Role:    "system",
			Content: "あなたは芝生管理（ローンケア）の専門家です。提供された年間の散布予測データを分析し、施工計画として分かりやすく説明してください。",
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("以下の12ヶ月分の散布予測について、月ごとの狙いと注意点を説明してください：\n\n%s", string(forecastJSON)),
		},
	}

	response, err := aos.client.ChatCompletion(ctx, messages, 1500, 0.7, 0.95)
	if err != nil {
		return "", err
	}

	if len(response.Choices) > 0 {
		return response.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AIから有効な回答が得られませんでした")
}
