package db

import (
	"fmt"
	"time"
)

// Reservation is one advisory lock row.
type Reservation struct {
	ResourceType string
	ResourceID   string
	Owner        string
	AcquiredAt   time.Time
	ExpiresAt    time.Time
}

// ReservationStore implements TTL-based advisory locks on top of the
// reservations table. All acquisition logic lives in a single
// conditional write so two workers can never both win a live row.
type ReservationStore struct {
	db  *Database
	now func() time.Time
}

// NewReservationStore builds a store over the shared database.
func NewReservationStore(database *Database) *ReservationStore {
	return &ReservationStore{db: database, now: time.Now}
}

// Reserve attempts to claim resourceType/resourceID for owner until
// now+ttl. It succeeds when no row exists, the existing row has
// expired, or the existing row already belongs to owner (re-entry
// refreshes the deadline). A store error is returned as (false, err)
// and callers must treat it like contention.
func (s *ReservationStore) Reserve(resourceType, resourceID, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.DB.Exec(`INSERT INTO reservations
		(resource_type, resource_id, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource_type, resource_id) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE reservations.expires_at <= excluded.acquired_at
		   OR reservations.owner = excluded.owner`,
		resourceType, resourceID, owner, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("reserve %s/%s: %w", resourceType, resourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release drops the reservation only when owner still holds it. A
// reservation stolen after expiry is left alone.
func (s *ReservationStore) Release(resourceType, resourceID, owner string) error {
	_, err := s.db.DB.Exec(`DELETE FROM reservations
		WHERE resource_type = ? AND resource_id = ? AND owner = ?`,
		resourceType, resourceID, owner)
	if err != nil {
		return fmt.Errorf("release %s/%s: %w", resourceType, resourceID, err)
	}
	return nil
}

// Get returns the current reservation row, expired or not.
func (s *ReservationStore) Get(resourceType, resourceID string) (*Reservation, error) {
	var r Reservation
	var acquiredMs, expiresMs int64
	err := s.db.DB.QueryRow(`SELECT resource_type, resource_id, owner, acquired_at, expires_at
		FROM reservations WHERE resource_type = ? AND resource_id = ?`,
		resourceType, resourceID).
		Scan(&r.ResourceType, &r.ResourceID, &r.Owner, &acquiredMs, &expiresMs)
	if err != nil {
		return nil, ErrNotFound
	}
	r.AcquiredAt = time.UnixMilli(acquiredMs)
	r.ExpiresAt = time.UnixMilli(expiresMs)
	return &r, nil
}

// ListActive returns reservations that have not yet expired.
func (s *ReservationStore) ListActive() ([]*Reservation, error) {
	rows, err := s.db.DB.Query(`SELECT resource_type, resource_id, owner, acquired_at, expires_at
		FROM reservations WHERE expires_at > ? ORDER BY acquired_at ASC`,
		s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		var r Reservation
		var acquiredMs, expiresMs int64
		if err := rows.Scan(&r.ResourceType, &r.ResourceID, &r.Owner, &acquiredMs, &expiresMs); err != nil {
			return nil, err
		}
		r.AcquiredAt = time.UnixMilli(acquiredMs)
		r.ExpiresAt = time.UnixMilli(expiresMs)
		out = append(out, &r)
	}
	return out, rows.Err()
}
