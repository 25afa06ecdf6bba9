package presence

import "time"

type softLock struct {
	holder    string
	expiresAt time.Time
}

// LockTable tracks advisory edit claims per element. A claim discourages but
// never prevents concurrent edits; it expires on TTL, on release, or when the
// holder goes idle or disconnects. Not safe for concurrent use; the owning
// room serializes access.
type LockTable struct {
	ttl   time.Duration
	locks map[string]softLock
}

func NewLockTable(ttl time.Duration) *LockTable {
	return &LockTable{
		ttl:   ttl,
		locks: make(map[string]softLock),
	}
}

// Claim records userID as the active editor of elementID. It returns false
// when another participant holds a live claim on the same element. A repeat
// claim by the current holder refreshes the TTL.
func (t *LockTable) Claim(elementID, userID string, now time.Time) bool {
	if l, ok := t.locks[elementID]; ok && now.Before(l.expiresAt) && l.holder != userID {
		return false
	}
	t.locks[elementID] = softLock{holder: userID, expiresAt: now.Add(t.ttl)}
	return true
}

// Release drops the claim on elementID if userID holds it.
func (t *LockTable) Release(elementID, userID string) {
	if l, ok := t.locks[elementID]; ok && l.holder == userID {
		delete(t.locks, elementID)
	}
}

// ReleaseAllHeldBy drops every claim held by userID, e.g. on disconnect.
func (t *LockTable) ReleaseAllHeldBy(userID string) {
	for el, l := range t.locks {
		if l.holder == userID {
			delete(t.locks, el)
		}
	}
}

// Holder returns the live claim holder for elementID, or "".
func (t *LockTable) Holder(elementID string, now time.Time) string {
	l, ok := t.locks[elementID]
	if !ok || !now.Before(l.expiresAt) {
		return ""
	}
	return l.holder
}

// Expire removes claims whose TTL has lapsed.
func (t *LockTable) Expire(now time.Time) {
	for el, l := range t.locks {
		if !now.Before(l.expiresAt) {
			delete(t.locks, el)
		}
	}
}
