package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rmacedof/fuelsync/internal/models"
	"go.uber.org/zap"
)

// StationRepository handles the station registry: the allow-list rows, the
// cnpj -> id resolution (cached per handle) and the per-station API key
// read/conditional-write used by the sales pipeline.
type StationRepository struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.RWMutex
	idCache map[string]string
}

// NewStationRepository creates a new station repository
func NewStationRepository(db *sql.DB, logger *zap.Logger) *StationRepository {
	return &StationRepository{
		db:      db,
		logger:  logger,
		idCache: make(map[string]string),
	}
}

// Sync makes sure every allow-listed station has a row, keeping display
// names current. Existing API keys are never touched here.
func (r *StationRepository) Sync(allowList map[string]string) error {
	for cnpj, name := range allowList {
		_, err := r.db.Exec(`
			INSERT INTO stations (id, cnpj, name) VALUES (?, ?, ?)
			ON CONFLICT(cnpj) DO UPDATE SET name = excluded.name
		`, uuid.NewString(), cnpj, name)
		if err != nil {
			r.logger.Error("Failed to sync station", zap.String("cnpj", cnpj), zap.Error(err))
			return fmt.Errorf("failed to sync station %s: %w", cnpj, err)
		}
	}
	return nil
}

// List returns all registered stations
func (r *StationRepository) List() ([]*models.Station, error) {
	rows, err := r.db.Query(`SELECT id, cnpj, name FROM stations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var stations []*models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.CNPJ, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, &s)
	}
	return stations, rows.Err()
}

// ResolveID resolves a station cnpj to its stored id, caching hits and
// misses alike. An unknown cnpj resolves to "".
func (r *StationRepository) ResolveID(cnpj string) string {
	r.mu.RLock()
	if id, ok := r.idCache[cnpj]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	var id string
	err := r.db.QueryRow(`SELECT id FROM stations WHERE cnpj = ? LIMIT 1`, cnpj).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		r.logger.Error("Failed to resolve station id", zap.String("cnpj", cnpj), zap.Error(err))
		return ""
	}

	r.mu.Lock()
	r.idCache[cnpj] = id
	r.mu.Unlock()
	return id
}

// APIKey returns the station's current sales API key, or "" when none is
// registered.
func (r *StationRepository) APIKey(cnpj string) (string, error) {
	var key sql.NullString
	err := r.db.QueryRow(`SELECT api_key FROM stations WHERE cnpj = ? LIMIT 1`, cnpj).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to read api key", zap.String("cnpj", cnpj), zap.Error(err))
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	return key.String, nil
}

// UpdateAPIKey persists a rotated key so the rest of the run, and every
// later run, uses the fresh credential.
func (r *StationRepository) UpdateAPIKey(cnpj, newKey string) error {
	res, err := r.db.Exec(`
		UPDATE stations SET api_key = ?, updated_at = CURRENT_TIMESTAMP WHERE cnpj = ?
	`, newKey, cnpj)
	if err != nil {
		r.logger.Error("Failed to persist rotated api key", zap.String("cnpj", cnpj), zap.Error(err))
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no station registered for cnpj %s", cnpj)
	}
	r.logger.Info("Rotated api key persisted", zap.String("cnpj", cnpj))
	return nil
}
