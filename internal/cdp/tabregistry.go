package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"
)

// TabRegistry maps CDP target IDs to the small integer tab ids recorded on
// captures. Ids are never reused within a process.
type TabRegistry struct {
	mu      sync.RWMutex
	byTgt   map[target.ID]int
	byTab   map[int]target.ID
	urls    map[target.ID]string
	nextTab int
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		byTgt: make(map[target.ID]int),
		byTab: make(map[int]target.ID),
		urls:  make(map[target.ID]string),
	}
}

// Register returns the tab id for targetID, allocating one on first sight.
func (r *TabRegistry) Register(targetID target.ID, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.urls[targetID] = url
	if id, ok := r.byTgt[targetID]; ok {
		return id
	}
	r.nextTab++
	r.byTgt[targetID] = r.nextTab
	r.byTab[r.nextTab] = targetID
	return r.nextTab
}

// TabID returns the tab id registered for targetID.
func (r *TabRegistry) TabID(targetID target.ID) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTgt[targetID]
	return id, ok
}

// Target returns the target registered under tabID.
func (r *TabRegistry) Target(tabID int) (target.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byTab[tabID]
	return t, ok
}

// URL returns the last URL seen for targetID.
func (r *TabRegistry) URL(targetID target.ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.urls[targetID]
}

// Remove forgets targetID and returns the tab id it had.
func (r *TabRegistry) Remove(targetID target.ID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byTgt[targetID]
	if !ok {
		return 0, false
	}
	delete(r.byTgt, targetID)
	delete(r.byTab, id)
	delete(r.urls, targetID)
	return id, true
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTgt)
}
