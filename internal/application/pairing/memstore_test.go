package pairing

import (
	"context"
	"fmt"
	"sync"

	"github.com/youme-api/internal/domain"
)

// memDB is an in-memory record store whose Link/Unlink apply the same
// conditions as the DynamoDB transaction, atomically under one lock.
type memDB struct {
	mu       sync.Mutex
	profiles map[string]domain.UserProfile
	codes    map[string]domain.CoupleCode
}

func newMemDB(userIDs ...string) *memDB {
	db := &memDB{profiles: map[string]domain.UserProfile{}, codes: map[string]domain.CoupleCode{}}
	for _, id := range userIDs {
		db.profiles[id] = domain.UserProfile{UserID: id, Email: id + "@example.com", DisplayName: id}
	}
	return db
}

func (db *memDB) partnerOf(userID string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	if p := db.profiles[userID].PartnerID; p != nil {
		return *p
	}
	return ""
}

func (db *memDB) codesOf(userID string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for code, c := range db.codes {
		if c.UserID == userID {
			out = append(out, code)
		}
	}
	return out
}

func (db *memDB) hasCode(code string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.codes[code]
	return ok
}

type memProfiles struct{ *memDB }

func (m memProfiles) Get(_ context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrProfileNotFound)
	}
	return &p, nil
}

type memCodes struct{ *memDB }

func (m memCodes) Get(_ context.Context, code string) (*domain.CoupleCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, fmt.Errorf("couple code %s: %w", code, domain.ErrInvalidCode)
	}
	return &c, nil
}

func (m memCodes) Create(_ context.Context, c *domain.CoupleCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[c.Code]; ok {
		return domain.ErrCodeCollision
	}
	m.codes[c.Code] = *c
	return nil
}

func (m memCodes) DeleteByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for code, c := range m.codes {
		if c.UserID == userID {
			delete(m.codes, code)
			n++
		}
	}
	return n, nil
}

func (m memCodes) ListCreatedBefore(_ context.Context, cutoff int64) ([]domain.CoupleCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CoupleCode
	for _, c := range m.codes {
		if c.CreatedAt < cutoff {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memCodes) DeleteIfCreatedBefore(_ context.Context, code string, cutoff int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.CreatedAt >= cutoff {
		return false, nil
	}
	delete(m.codes, code)
	return true, nil
}

type memTx struct{ *memDB }

func (m memTx) Link(_ context.Context, requesterID, ownerID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.profiles[requesterID]
	if !ok || req.Linked() {
		return domain.ErrAlreadyLinked
	}
	owner, ok := m.profiles[ownerID]
	if !ok || owner.Linked() {
		return domain.ErrPartnerAlreadyLinked
	}
	if c, ok := m.codes[code]; !ok || c.UserID != ownerID {
		return domain.ErrInvalidCode
	}
	req.PartnerID = &ownerID
	owner.PartnerID = &requesterID
	m.profiles[requesterID] = req
	m.profiles[ownerID] = owner
	delete(m.codes, code)
	return nil
}

func (m memTx) Unlink(_ context.Context, userID, partnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, p := m.profiles[userID], m.profiles[partnerID]
	if u.PartnerID == nil || *u.PartnerID != partnerID || p.PartnerID == nil || *p.PartnerID != userID {
		return domain.ErrConflict
	}
	u.PartnerID, p.PartnerID = nil, nil
	m.profiles[userID], m.profiles[partnerID] = u, p
	return nil
}
