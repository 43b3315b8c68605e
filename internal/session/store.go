// Package session persists per-meter reading state so a route survives a restart.
//
// Keys:
//
//	meter_<id>_reading       raw input text
//	meter_<id>_confirmed     "true" / "false"
//	meter_<id>_verification  VerificationRecord JSON
//	lastViewedMeterIndex     cursor of the last meter screen shown
//	session_<user>           Snapshot JSON
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/domain"
)

const (
	meterKeyPrefix     = "meter_"
	lastViewedIndexKey = "lastViewedMeterIndex"
	snapshotKeyPrefix  = "session_"
)

func readingKey(meterID string) string      { return meterKeyPrefix + meterID + "_reading" }
func confirmedKey(meterID string) string    { return meterKeyPrefix + meterID + "_confirmed" }
func verificationKey(meterID string) string { return meterKeyPrefix + meterID + "_verification" }

// Snapshot is the route-level state restored when a reader resumes.
type Snapshot struct {
	RouteID      string           `json:"routeId"`
	Cursor       int              `json:"cursor"`
	TargetPeriod domain.PeriodKey `json:"targetPeriod"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Store reads and writes ReadingSessions through a KV. Every mutation is
// written through immediately.
//
// The store does not stop SetReading on a confirmed meter. Callers must
// unconfirm first; the route session enforces this.
type Store struct {
	kv     KV
	logger *slog.Logger
}

// NewStore creates a Store over kv.
func NewStore(kv KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Get returns the session for a meter, a zero session if nothing is stored.
// An orphaned or unreadable verification record is deleted and not returned.
func (s *Store) Get(meterID string) (domain.ReadingSession, error) {
	sess := domain.ReadingSession{MeterID: meterID}

	text, _, err := s.kv.Get(readingKey(meterID))
	if err != nil {
		return sess, fmt.Errorf("get reading %s: %w", meterID, err)
	}
	sess.InputText = text

	confirmed, _, err := s.kv.Get(confirmedKey(meterID))
	if err != nil {
		return sess, fmt.Errorf("get confirmed %s: %w", meterID, err)
	}
	sess.IsConfirmed = confirmed == "true"

	raw, ok, err := s.kv.Get(verificationKey(meterID))
	if err != nil {
		return sess, fmt.Errorf("get verification %s: %w", meterID, err)
	}
	if !ok {
		return sess, nil
	}

	if !sess.IsConfirmed {
		s.logger.Warn("dropping verification of unconfirmed meter", "meter_id", meterID)
		return sess, s.dropVerification(meterID)
	}

	var rec domain.VerificationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Warn("dropping unreadable verification", "meter_id", meterID, "error", err)
		return sess, s.dropVerification(meterID)
	}
	sess.Verification = &rec
	return sess, nil
}

// SetReading stores the raw input text. Empty text removes the key.
func (s *Store) SetReading(meterID, text string) error {
	if text == "" {
		return s.kv.Delete(readingKey(meterID))
	}
	if err := s.kv.Set(readingKey(meterID), text); err != nil {
		return fmt.Errorf("set reading %s: %w", meterID, err)
	}
	return nil
}

// SetConfirmed stores the confirmed flag. Unconfirming also discards any
// verification record.
func (s *Store) SetConfirmed(meterID string, confirmed bool) error {
	if err := s.kv.Set(confirmedKey(meterID), strconv.FormatBool(confirmed)); err != nil {
		return fmt.Errorf("set confirmed %s: %w", meterID, err)
	}
	if !confirmed {
		return s.dropVerification(meterID)
	}
	return nil
}

// SetVerification stores a record, or removes it when rec is nil.
func (s *Store) SetVerification(meterID string, rec *domain.VerificationRecord) error {
	if rec == nil {
		return s.dropVerification(meterID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode verification %s: %w", meterID, err)
	}
	if err := s.kv.Set(verificationKey(meterID), string(data)); err != nil {
		return fmt.Errorf("set verification %s: %w", meterID, err)
	}
	return nil
}

// Clear removes all state for one meter.
func (s *Store) Clear(meterID string) error {
	if err := s.kv.Delete(readingKey(meterID), confirmedKey(meterID), verificationKey(meterID)); err != nil {
		return fmt.Errorf("clear meter %s: %w", meterID, err)
	}
	return nil
}

// ClearAll removes the state of every meter.
func (s *Store) ClearAll() error {
	keys, err := s.kv.Keys(meterKeyPrefix)
	if err != nil {
		return fmt.Errorf("list meter keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.kv.Delete(keys...); err != nil {
		return fmt.Errorf("clear meters: %w", err)
	}
	s.logger.Debug("cleared meter sessions", "keys", len(keys))
	return nil
}

// LastViewedIndex returns the stored meter cursor, if any.
func (s *Store) LastViewedIndex() (int, bool, error) {
	v, ok, err := s.kv.Get(lastViewedIndexKey)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetLastViewedIndex stores the meter cursor.
func (s *Store) SetLastViewedIndex(index int) error {
	return s.kv.Set(lastViewedIndexKey, strconv.Itoa(index))
}

// ClearLastViewedIndex removes the stored meter cursor.
func (s *Store) ClearLastViewedIndex() error {
	return s.kv.Delete(lastViewedIndexKey)
}

// SaveSnapshot stores the route snapshot for user.
func (s *Store) SaveSnapshot(user string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.kv.Set(snapshotKeyPrefix+user, string(data))
}

// LoadSnapshot returns the stored snapshot for user. An unreadable snapshot
// is treated as absent.
func (s *Store) LoadSnapshot(user string) (Snapshot, bool, error) {
	raw, ok, err := s.kv.Get(snapshotKeyPrefix + user)
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("ignoring unreadable session snapshot", "user", user, "error", err)
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// DeleteSnapshot removes the stored snapshot for user.
func (s *Store) DeleteSnapshot(user string) error {
	return s.kv.Delete(snapshotKeyPrefix + user)
}

func (s *Store) dropVerification(meterID string) error {
	if err := s.kv.Delete(verificationKey(meterID)); err != nil {
		return fmt.Errorf("delete verification %s: %w", meterID, err)
	}
	return nil
}
