package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryRegistry はプロセス内の map にセッションを保持します。
// 単一プロセスでの開発・テスト用です。
type MemoryRegistry struct {
	lock    sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryRegistry は MemoryRegistry を作成します。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Create はセッションを保存します。
func (r *MemoryRegistry) Create(ctx context.Context, record *Record, ttl time.Duration) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record with id is required")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.now()
	for id, e := range r.entries {
		if e.expired(now) {
			delete(r.entries, id)
		}
	}

	entry := &memoryEntry{record: cloneRecord(record)}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	r.entries[record.ID] = entry
	return nil
}

// Get はセッションを取得します。
func (r *MemoryRegistry) Get(ctx context.Context, id string) (*Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	if entry.expired(r.now()) {
		delete(r.entries, id)
		return nil, nil
	}
	record := cloneRecord(&entry.record)
	return &record, nil
}

// Touch は最終アクセス時刻を更新します。存在しない場合は何もしません。
func (r *MemoryRegistry) Touch(ctx context.Context, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if entry, ok := r.entries[id]; ok {
		entry.record.LastActivity = at
	}
	return nil
}

// Delete はセッションを削除します。
func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.entries, id)
	return nil
}

// Len は保持しているセッション数を返します。
func (r *MemoryRegistry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func cloneRecord(r *Record) Record {
	c := *r
	c.Authorities = append([]string(nil), r.Authorities...)
	return c
}
