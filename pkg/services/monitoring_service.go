package services

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		// モニタリングAPI自身のリクエストは記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") {
			return
		}

		entry := LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		}
		s.LogRequest(entry)
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	TotalRequests     int            `json:"total_requests"`
	Endpoints         map[string]int `json:"endpoints"`
	StatusCodes       map[string]int `json:"status_codes"`
	AvgResponseTimeMs float64        `json:"avg_response_time_ms"`
	RecentErrors      []LogEntry     `json:"recent_errors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().Add(-time.Duration(periodHours) * time.Hour)

	data := DashboardData{
		Endpoints:    make(map[string]int),
		StatusCodes:  make(map[string]int),
		RecentErrors: make([]LogEntry, 0),
	}

	var totalResponseTime time.Duration
	for _, entry := range s.logs {
		if !entry.Timestamp.After(since) {
			continue
		}
		data.TotalRequests++
		data.Endpoints[entry.Method+" "+entry.Path]++
		data.StatusCodes[statusClass(entry.StatusCode)]++
		totalResponseTime += entry.ResponseTime

		if entry.StatusCode >= 500 {
			data.RecentErrors = append(data.RecentErrors, entry)
		}
	}

	if data.TotalRequests > 0 {
		data.AvgResponseTimeMs = float64(totalResponseTime.Milliseconds()) / float64(data.TotalRequests)
	}

	// 直近のエラーは最大20件まで
	if len(data.RecentErrors) > 20 {
		data.RecentErrors = data.RecentErrors[len(data.RecentErrors)-20:]
	}

	return data
}

// statusClass はステータスコードを "2xx" のようなクラス表記に変換します。
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
