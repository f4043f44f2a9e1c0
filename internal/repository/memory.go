package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"evcentral/internal/models"
)

// MemoryStore keeps everything in process memory. It backs the "memory"
// storage driver and the service tests.
type MemoryStore struct {
	mu           sync.RWMutex
	chargers     map[string]models.Charger
	statusLog    []models.StatusLogEntry
	transactions map[int64]models.Transaction
	nextTxID     int64
	tags         map[string]models.AuthTag
	messages     []models.MessageLogEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chargers:     make(map[string]models.Charger),
		transactions: make(map[int64]models.Transaction),
		tags:         make(map[string]models.AuthTag),
	}
}

func (m *MemoryStore) CreateCharger(ctx context.Context, charger *models.Charger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chargers[charger.ID]; ok {
		return ErrAlreadyExists
	}
	if charger.LastSeen.IsZero() {
		charger.LastSeen = time.Now().UTC()
	}
	charger.CreatedAt = time.Now().UTC()
	m.chargers[charger.ID] = *charger
	return nil
}

func (m *MemoryStore) UpsertCharger(ctx context.Context, charger *models.Charger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if charger.LastSeen.IsZero() {
		charger.LastSeen = time.Now().UTC()
	}
	if existing, ok := m.chargers[charger.ID]; ok {
		charger.CreatedAt = existing.CreatedAt
	} else {
		charger.CreatedAt = time.Now().UTC()
	}
	m.chargers[charger.ID] = *charger
	return nil
}

func (m *MemoryStore) UpdateChargerStatus(ctx context.Context, chargerID string, status models.ChargerStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chargers[chargerID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.LastSeen = lastSeen
	m.chargers[chargerID] = c
	return nil
}

func (m *MemoryStore) GetCharger(ctx context.Context, chargerID string) (*models.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chargers[chargerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListChargers(ctx context.Context) ([]models.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Charger, 0, len(m.chargers))
	for _, c := range m.chargers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AppendStatus(ctx context.Context, entry models.StatusLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.statusLog) + 1)
	m.statusLog = append(m.statusLog, entry)
	return nil
}

func (m *MemoryStore) ListStatus(ctx context.Context, chargerID string, limit int) ([]models.StatusLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.StatusLogEntry
	for i := len(m.statusLog) - 1; i >= 0 && len(out) < limit; i-- {
		if m.statusLog[i].ChargerID == chargerID {
			out = append(out, m.statusLog[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transactions {
		if existing.ChargerID == tx.ChargerID && existing.StopTime == nil {
			return ErrActiveTransaction
		}
	}
	m.nextTxID++
	tx.ID = m.nextTxID
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *MemoryStore) CloseTransaction(ctx context.Context, id int64, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok || tx.StopTime != nil {
		return ErrNotFound
	}
	tx.MeterStop = &meterStop
	tx.StopTime = &stopTime
	tx.Status = status
	tx.StopReason = reason
	m.transactions[id] = tx
	return nil
}

func (m *MemoryStore) AmendStop(ctx context.Context, id int64, pendingReason string, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok || tx.StopTime == nil || tx.StopReason != pendingReason {
		return ErrNotFound
	}
	tx.MeterStop = &meterStop
	tx.StopTime = &stopTime
	tx.Status = status
	tx.StopReason = reason
	m.transactions[id] = tx
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (m *MemoryStore) ActiveTransaction(ctx context.Context, chargerID string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.transactions {
		if tx.ChargerID == chargerID && tx.StopTime == nil {
			return &tx, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetAuthTag(ctx context.Context, idTag string) (*models.AuthTag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tag, ok := m.tags[idTag]
	if !ok {
		return nil, ErrNotFound
	}
	return &tag, nil
}

func (m *MemoryStore) PutAuthTag(ctx context.Context, tag models.AuthTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[tag.IDTag] = tag
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, chargerID, direction, action string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, models.MessageLogEntry{
		ID:        int64(len(m.messages) + 1),
		ChargerID: chargerID,
		Direction: direction,
		Action:    action,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Messages returns a copy of the stored frame log.
func (m *MemoryStore) Messages() []models.MessageLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.MessageLogEntry(nil), m.messages...)
}
