package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// StoreRawPayload archives a gzip-compressed copy of a source response.
// It returns the new payload ID, or 0 if an identical payload was already stored.
func (s *Store) StoreRawPayload(runID int64, sourceURL string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	var ingestRunID sql.NullInt64
	if runID > 0 {
		ingestRunID = sql.NullInt64{Int64: runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads (ingest_run_id, fetched_at, source_url, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, ingestRunID, time.Now().UTC(), sourceURL, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	// last_insert_rowid is stale when the insert was skipped.
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// RawPayload is an archived source response.
type RawPayload struct {
	ID          int64
	IngestRunID sql.NullInt64
	FetchedAt   time.Time
	SourceURL   string
	Hash        string
	Body        []byte
}

// GetRawPayload loads an archived response by ID with its body decompressed.
// It returns sql.ErrNoRows if no such payload exists.
func (s *Store) GetRawPayload(id int64) (*RawPayload, error) {
	p := &RawPayload{ID: id}
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT ingest_run_id, fetched_at, source_url, payload_hash, payload_compressed
		FROM raw_payloads WHERE id = ?
	`, id).Scan(&p.IngestRunID, &p.FetchedAt, &p.SourceURL, &p.Hash, &compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("payload %d: %w", id, err)
	}
	defer gz.Close()

	if p.Body, err = io.ReadAll(gz); err != nil {
		return nil, fmt.Errorf("payload %d: decompress: %w", id, err)
	}
	if sum := sha256.Sum256(p.Body); hex.EncodeToString(sum[:]) != p.Hash {
		return nil, fmt.Errorf("payload %d: hash mismatch", id)
	}
	return p, nil
}

// CleanupOldRawPayloads deletes payloads fetched more than retentionDays ago.
func (s *Store) CleanupOldRawPayloads(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
