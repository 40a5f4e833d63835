package app

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"gopherai-assistant/internal/model"
)

// Registry hands out one Assistant per user and drops assistants that stay
// idle longer than the TTL.
type Registry struct {
	appID   string
	gateway Gateway
	store   HistoryStore
	logger  *zap.Logger

	mu         sync.Mutex
	assistants *cache.Cache
}

func NewRegistry(appID string, gateway Gateway, historyStore HistoryStore, idleTTL time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	c := cache.New(idleTTL, idleTTL/3)
	c.OnEvicted(func(userID string, value interface{}) {
		if assistant, ok := value.(*Assistant); ok {
			logger.Debug("assistant evicted", zap.String("user_id", userID))
			assistant.Close()
		}
	})
	return &Registry{
		appID:      appID,
		gateway:    gateway,
		store:      historyStore,
		logger:     logger,
		assistants: c,
	}
}

func (r *Registry) AppID() string {
	return r.appID
}

// Get returns the assistant of userID, starting one on first use. Every call
// renews the idle TTL.
func (r *Registry) Get(userID string) (*Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value, found := r.assistants.Get(userID); found {
		assistant := value.(*Assistant)
		r.assistants.Set(userID, assistant, cache.DefaultExpiration)
		return assistant, nil
	}

	assistant := NewAssistant(r.gateway, r.store, r.logger.With(zap.String("user_id", userID)))
	if err := assistant.Start(model.Partition{AppID: r.appID, UserID: userID}); err != nil {
		return nil, err
	}
	r.assistants.Set(userID, assistant, cache.DefaultExpiration)
	return assistant, nil
}

// Evict closes and forgets the assistant of userID.
func (r *Registry) Evict(userID string) {
	r.assistants.Delete(userID)
}

func (r *Registry) Len() int {
	return r.assistants.ItemCount()
}

// Close shuts every assistant down.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistants.DeleteExpired()
	for userID := range r.assistants.Items() {
		r.assistants.Delete(userID)
	}
}
