// Package store persists issued certificates: a SQLite index for
// lookups plus pretty-printed JSON artifacts on disk for humans.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one indexed certificate row.
type Record struct {
	CertID       string
	CertType     string
	DeviceSerial string
	Result       string
	CreatedAt    time.Time
	Signed       bool
	Path         string
}

// SQLiteCertStore indexes certificates in SQLite and mirrors each one
// as a JSON file under its artifact directory.
type SQLiteCertStore struct {
	db          *sql.DB
	artifactDir string
}

// Open creates the store at dir, with the index database and artifact
// files side by side.
func Open(dir string) (*SQLiteCertStore, error) {
	artifactDir := filepath.Join(dir, "certificates")
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create certificate dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "securewipe.db"))
	if err != nil {
		return nil, fmt.Errorf("open certificate index: %w", err)
	}
	return NewSQLiteCertStore(db, artifactDir)
}

// NewSQLiteCertStore wraps an existing database handle; tests pass an
// in-memory one.
func NewSQLiteCertStore(db *sql.DB, artifactDir string) (*SQLiteCertStore, error) {
	s := &SQLiteCertStore{db: db, artifactDir: artifactDir}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCertStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS certificates (
        cert_id TEXT PRIMARY KEY,
        cert_type TEXT NOT NULL,
        device_serial TEXT,
        result TEXT,
        created_at DATETIME,
        signed INTEGER NOT NULL DEFAULT 0,
        body JSON NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close releases the underlying database.
func (s *SQLiteCertStore) Close() error { return s.db.Close() }

// ArtifactPath returns where a certificate's JSON file lives.
func (s *SQLiteCertStore) ArtifactPath(certID string) string {
	return filepath.Join(s.artifactDir, certID+".json")
}

// Save indexes the certificate and writes its JSON artifact. Saving an
// existing cert_id replaces both, which is how signing updates a
// previously stored unsigned certificate.
func (s *SQLiteCertStore) Save(ctx context.Context, cert map[string]interface{}) error {
	certID, _ := cert["cert_id"].(string)
	if certID == "" {
		return fmt.Errorf("certificate missing cert_id")
	}
	certType, _ := cert["cert_type"].(string)
	result, _ := cert["result"].(string)
	createdAt, _ := cert["created_at"].(string)
	_, signed := cert["signature"]

	var serial string
	if dev, ok := cert["device"].(map[string]interface{}); ok {
		serial, _ = dev["serial"].(string)
	}

	body, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("marshal certificate %s: %w", certID, err)
	}

	query := `INSERT INTO certificates (cert_id, cert_type, device_serial, result, created_at, signed, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cert_id) DO UPDATE SET
			cert_type = excluded.cert_type,
			device_serial = excluded.device_serial,
			result = excluded.result,
			created_at = excluded.created_at,
			signed = excluded.signed,
			body = excluded.body`
	if _, err := s.db.ExecContext(ctx, query,
		certID, certType, serial, result, createdAt, boolInt(signed), string(body)); err != nil {
		return fmt.Errorf("index certificate %s: %w", certID, err)
	}

	pretty, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", certID, err)
	}
	if err := os.WriteFile(s.ArtifactPath(certID), pretty, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", certID, err)
	}
	return nil
}

// ErrNotFound-style sentinel kept as a plain error string for sql-level
// callers to match on.
var errCertNotFound = fmt.Errorf("certificate not found")

// IsNotFound reports whether err means the certificate does not exist.
func IsNotFound(err error) bool { return err == errCertNotFound }

// Get loads the full certificate body for a cert_id.
func (s *SQLiteCertStore) Get(ctx context.Context, certID string) (map[string]interface{}, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM certificates WHERE cert_id = ?`, certID)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, errCertNotFound
		}
		return nil, err
	}
	var cert map[string]interface{}
	if err := json.Unmarshal([]byte(body), &cert); err != nil {
		return nil, fmt.Errorf("parse stored certificate %s: %w", certID, err)
	}
	return cert, nil
}

// List returns the newest certificate records, optionally filtered by
// type.
func (s *SQLiteCertStore) List(ctx context.Context, certType string, limit int) ([]*Record, error) {
	query := `SELECT cert_id, cert_type, device_serial, result, created_at, signed
		FROM certificates`
	args := []any{}
	if certType != "" {
		query += ` WHERE cert_type = ?`
		args = append(args, certType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var (
			r         Record
			serial    sql.NullString
			result    sql.NullString
			createdAt sql.NullString
			signed    int
		)
		if err := rows.Scan(&r.CertID, &r.CertType, &serial, &result, &createdAt, &signed); err != nil {
			return nil, err
		}
		r.DeviceSerial = serial.String
		r.Result = result.String
		r.CreatedAt = parseTime(createdAt.String)
		r.Signed = signed != 0
		r.Path = s.ArtifactPath(r.CertID)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
