// Package ais implements the Address Intelligence Store: a read-only
// lookup of address -> {category, entity, confidence, tags, balance_usd}.
// It is populated out-of-band by offline discovery jobs; this package
// only ever reads.
package ais

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whaleintel/pipeline/internal/model"
)

// AddressRow is the GORM model backing the address_intelligence table.
type AddressRow struct {
	Address    string `gorm:"primaryKey"`
	Blockchain string `gorm:"primaryKey"`
	Category   string
	EntityName string
	Confidence float64
	BalanceUSD float64
	Tags       string // comma-separated; populated by the offline job
	LastSeen   time.Time
}

// TableName pins the GORM table name regardless of struct name changes.
func (AddressRow) TableName() string { return "address_intelligence" }

// Store is the read-only AIS. It caches the full table in memory and
// refreshes on a timer, since the offline population job writes in
// batches rather than per-row, and engine phases must never block on a
// database round trip.
type Store struct {
	db *gorm.DB

	mu    sync.RWMutex
	byKey map[addrKey]model.AddressRecord
}

type addrKey struct {
	blockchain string
	address    string
}

// Connect opens the AIS Postgres connection with a silent GORM logger.
func Connect(host, port, name, user, password string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		host, port, name, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AIS database: %w", err)
	}
	return db, nil
}

// New creates a Store over an already-open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, byKey: make(map[addrKey]model.AddressRecord)}
}

// Refresh reloads the entire address table into memory. Call once at
// startup and then periodically (the supervisor ticks this like any
// other background task).
func (s *Store) Refresh() error {
	var rows []AddressRow
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("AIS refresh failed: %w", err)
	}

	next := make(map[addrKey]model.AddressRecord, len(rows))
	for _, row := range rows {
		rec := model.AddressRecord{
			Address:    strings.ToLower(row.Address),
			Blockchain: row.Blockchain,
			Category:   model.AddressCategory(row.Category),
			EntityName: row.EntityName,
			Confidence: row.Confidence,
			BalanceUSD: row.BalanceUSD,
			HasBalance: row.BalanceUSD > 0,
		}
		if row.Tags != "" {
			rec.Tags = strings.Split(row.Tags, ",")
		}
		next[addrKey{blockchain: row.Blockchain, address: rec.Address}] = rec
	}

	s.mu.Lock()
	s.byKey = next
	s.mu.Unlock()
	return nil
}

// Lookup returns the AddressRecord for (blockchain, address), if known.
func (s *Store) Lookup(blockchain, address string) (model.AddressRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[addrKey{blockchain: blockchain, address: strings.ToLower(address)}]
	return rec, ok
}

// Size returns the number of cached address records, for health/metrics.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
