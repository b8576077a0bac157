package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrKeyReused means an Idempotency-Key came back with a different request.
var ErrKeyReused = errors.New("idempotency key reused for a different request")

// IdempotencyRecord remembers the answer given to one public booking request.
// Fingerprint identifies the request the key was first used with.
type IdempotencyRecord struct {
	Key             string
	Fingerprint     string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Completed reports whether a response was stored for the key.
func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode != 0 && len(r.ResponsePayload) > 0
}

// Matches reports whether fingerprint belongs to the request that created
// the key. Rows written before fingerprints were stored match anything.
func (r IdempotencyRecord) Matches(fingerprint string) bool {
	return r.Fingerprint == "" || fingerprint == "" || r.Fingerprint == fingerprint
}

const lockIdempotencySQL = `SELECT idempotency_key, request_hash, COALESCE(appointment_id::text, ''), COALESCE(status_code, 0), COALESCE(response_payload::text, '')
FROM booking_idempotency_keys WHERE idempotency_key = $1 FOR UPDATE`

// LockIdempotencyKey returns the row for key and holds its lock until tx
// ends. A missing key is inserted with fingerprint and found is false.
// Concurrent first uses of a key serialize on the insert.
func (r *AppointmentRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key, fingerprint string) (IdempotencyRecord, bool, error) {
	rec, err := scanIdempotency(tx.QueryRow(ctx, lockIdempotencySQL, key))
	switch {
	case err == nil:
		return rec, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return IdempotencyRecord{}, false, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO booking_idempotency_keys (idempotency_key, request_hash) VALUES ($1, $2) ON CONFLICT (idempotency_key) DO NOTHING`,
		key, fingerprint,
	); err != nil {
		return IdempotencyRecord{}, false, err
	}
	rec, err = scanIdempotency(tx.QueryRow(ctx, lockIdempotencySQL, key))
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	// Another request may have won the insert and already finished.
	return rec, rec.Completed(), nil
}

func (r *AppointmentRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($2, '')::uuid, status_code = $3, response_payload = $4, updated_at = now()
		WHERE idempotency_key = $1
	`, key, appointmentID, statusCode, response)
	return err
}

func scanIdempotency(row pgx.Row) (IdempotencyRecord, error) {
	var (
		rec  IdempotencyRecord
		body string
	)
	if err := row.Scan(&rec.Key, &rec.Fingerprint, &rec.AppointmentID, &rec.StatusCode, &body); err != nil {
		return IdempotencyRecord{}, err
	}
	if body != "" {
		rec.ResponsePayload = []byte(body)
	}
	return rec, nil
}
