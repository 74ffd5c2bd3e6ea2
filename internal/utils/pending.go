package utils

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"budget-tracker-bot/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingExpense is an expense typed into the chat that still waits for a
// category.
type PendingExpense struct {
	UserID    string
	ChatID    int64
	Name      string
	Amount    decimal.Decimal
	Date      models.Date
	MessageID int
}

// PendingCache is an LRU cache with TTL holding pending expenses by short id.
type PendingCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	items   map[string]*list.Element
	lru     *list.List
}

type pendingItem struct {
	id        string
	expense   PendingExpense
	expiresAt time.Time
}

// NewPendingCache creates a cache holding at most maxSize entries for ttl each.
func NewPendingCache(maxSize int, ttl time.Duration) *PendingCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &PendingCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Put stores p and returns the id to put in callback data.
func (c *PendingCache) Put(p PendingExpense) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	elem := c.lru.PushFront(&pendingItem{id: id, expense: p, expiresAt: c.now().Add(c.ttl)})
	c.items[id] = elem

	// Evict if over capacity
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	return id
}

// Get returns the pending expense without removing it.
func (c *PendingCache) Get(id string) (PendingExpense, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return PendingExpense{}, false
	}
	item := elem.Value.(*pendingItem)
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		return PendingExpense{}, false
	}
	c.lru.MoveToFront(elem)
	return item.expense, true
}

// Take returns and removes the pending expense, so a double tap on a
// keyboard commits it only once.
func (c *PendingCache) Take(id string) (PendingExpense, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return PendingExpense{}, false
	}
	item := elem.Value.(*pendingItem)
	c.removeElement(elem)
	if c.now().After(item.expiresAt) {
		return PendingExpense{}, false
	}
	return item.expense, true
}

func (c *PendingCache) removeElement(elem *list.Element) {
	item := elem.Value.(*pendingItem)
	delete(c.items, item.id)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *PendingCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*pendingItem).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the current number of items in the cache
func (c *PendingCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
