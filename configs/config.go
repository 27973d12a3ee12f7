package config

import (
	"os"
)

// Config holds the application configuration
type Config struct {
	Port                               string
	Environment                        string
	APIKey                             string
	AzureOpenAIEndpoint                string
	AzureOpenAIAPIKey                  string
	AzureOpenAIAPIVersion              string
	AzureOpenAIChatDeploymentName      string
	AzureOpenAIEmbeddingDeploymentName string
	EmbeddingDimension                 string
	QdrantURL                          string
	QdrantAPIKey                       string
	SerperAPIKey                       string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:                               getEnv("PORT", "8080"),
		Environment:                        getEnv("ENVIRONMENT", "development"),
		APIKey:                             getEnv("API_KEY", ""),
		AzureOpenAIEndpoint:                getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:                  getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIAPIVersion:              getEnv("AZURE_OPENAI_API_VERSION", "2023-12-01-preview"),
		AzureOpenAIChatDeploymentName:      getEnv("AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeploymentName: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME", "text-embedding-3-small"),
		EmbeddingDimension:                 getEnv("EMBEDDING_DIMENSION", "1536"),
		QdrantURL:                          getEnv("QDRANT_URL", ""),
		QdrantAPIKey:                       getEnv("QDRANT_API_KEY", ""),
		SerperAPIKey:                       getEnv("SERPER_API_KEY", ""),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
