package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// GetPreference returns the stored value for key, or ErrNotFound.
func GetPreference(db DBExecutor, key string) (Preference, error) {
	p := Preference{Key: key}
	err := db.QueryRow(`SELECT value, updated_at FROM preferences WHERE key = ?`, key).Scan(&p.Value, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, fmt.Errorf("get preference %s: %w", key, err)
	}
	return p, nil
}

// SetPreference inserts or replaces the value for key.
func SetPreference(db DBExecutor, key, value string) error {
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return fmt.Errorf("key must be non-empty")
	}
	_, err := db.Exec(`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		trimmedKey, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert preference %s: %w", trimmedKey, err)
	}
	return nil
}

// SaveRateSnapshot stores a fetched rate table and returns its id.
func SaveRateSnapshot(db DBExecutor, base string, rates map[string]float64, fetchedAt time.Time) (int64, error) {
	if base == "" {
		return 0, fmt.Errorf("base must be non-empty")
	}
	if len(rates) == 0 {
		return 0, fmt.Errorf("refusing to store empty rate table")
	}
	payload, err := json.Marshal(rates)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`INSERT INTO rate_snapshots (base, rates, fetched_at) VALUES (?, ?, ?)`,
		base, string(payload), fetchedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert rate snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestRateSnapshot returns the newest snapshot for base fetched at or after
// notBefore, or ErrNotFound.
func LatestRateSnapshot(db DBExecutor, base string, notBefore time.Time) (RateSnapshot, error) {
	var (
		s       RateSnapshot
		payload string
	)
	err := db.QueryRow(`SELECT id, base, rates, fetched_at FROM rate_snapshots
		WHERE base = ? AND fetched_at >= ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1`, base, notBefore.UTC()).
		Scan(&s.ID, &s.Base, &payload, &s.FetchedAt)
	if err == sql.ErrNoRows {
		return RateSnapshot{}, ErrNotFound
	}
	if err != nil {
		return RateSnapshot{}, fmt.Errorf("query rate snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &s.Rates); err != nil {
		return RateSnapshot{}, fmt.Errorf("decode rate snapshot %d: %w", s.ID, err)
	}
	return s, nil
}

// PruneRateSnapshots keeps only the newest keep snapshots for base.
func PruneRateSnapshots(db DBExecutor, base string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}
	res, err := db.Exec(`DELETE FROM rate_snapshots WHERE base = ? AND id NOT IN (
		SELECT id FROM rate_snapshots WHERE base = ? ORDER BY fetched_at DESC, id DESC LIMIT ?)`,
		base, base, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
