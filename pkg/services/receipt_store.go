package services

import (
	"strings"
	"sync"

	"lawn-ai-api/pkg/models"
)

// ReceiptStore は解析済みレコードをメモリ上に保持します。
// 永続化は行わず、1回の実行（プロセス）のライフサイクルでのみ有効です。
type ReceiptStore struct {
	records []models.ReceiptRecord
	mu      sync.RWMutex
}

// NewReceiptStore は新しいReceiptStoreを生成します。
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		records: make([]models.ReceiptRecord, 0),
	}
}

// Add はレコードを追加します。
func (s *ReceiptStore) Add(record models.ReceiptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// List は全レコードのコピーを追加順で返します。
func (s *ReceiptStore) List() []models.ReceiptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]models.ReceiptRecord, len(s.records))
	copy(records, s.records)
	return records
}

// Count は保持中のレコード数を返します。
func (s *ReceiptStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear は全レコードを破棄します。
func (s *ReceiptStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]models.ReceiptRecord, 0)
}

// NoteTexts はメモが空でないレコードのメモを出現順で返します。
// 埋め込み生成の入力として使用します。
func (s *ReceiptStore) NoteTexts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]string, 0)
	for _, record := range s.records {
		if strings.TrimSpace(record.Notes) != "" {
			notes = append(notes, record.Notes)
		}
	}
	return notes
}

// AttachEmbeddings はメモが空でないレコードに出現順でベクトルを付与します。
// ベクトルのリストがレコード数より短い場合、尽きた時点で割り当てを止めます。
// 付与できた数を返します。
func (s *ReceiptStore) AttachEmbeddings(embeddings [][]float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := 0
	for i := range s.records {
		if strings.TrimSpace(s.records[i].Notes) == "" {
			continue
		}
		if idx >= len(embeddings) {
			break
		}
		s.records[i].Embedding = embeddings[idx]
		idx++
	}
	return idx
}

// AttachedEmbeddings は付与済みのベクトルを、メモを持つレコードの出現順で返します。
// 履歴テーブル生成への入力形式です。
func (s *ReceiptStore) AttachedEmbeddings() [][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	embeddings := make([][]float32, 0)
	for _, record := range s.records {
		if record.Embedding != nil {
			embeddings = append(embeddings, record.Embedding)
		}
	}
	return embeddings
}
