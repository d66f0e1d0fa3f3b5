package bot

import "sync"

// TargetRegistry keeps the target site of every chat. Chats that never
// called /seturl get the default.
type TargetRegistry struct {
	mu       sync.RWMutex
	fallback string
	targets  map[int64]string
}

func NewTargetRegistry(fallback string) *TargetRegistry {
	return &TargetRegistry{
		fallback: fallback,
		targets:  make(map[int64]string),
	}
}

func (r *TargetRegistry) Get(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.targets[chatID]; ok {
		return u
	}
	return r.fallback
}

func (r *TargetRegistry) Set(chatID int64, url string) {
	r.mu.Lock()
	r.targets[chatID] = url
	r.mu.Unlock()
}
