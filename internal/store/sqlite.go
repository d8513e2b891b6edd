package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no annotation exists for a key.
var ErrNotFound = errors.New("annotation not found")

// Store represents the SQLite annotation store.
type Store struct {
	db   *sql.DB
	lock *fileLock
}

// Options configures Open.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration

	// MaxConnections caps the connection pool.
	MaxConnections int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:    5 * time.Second,
		MaxConnections: 1,
	}
}

// Open opens or creates the SQLite database at the given path and runs
// migrations. A lock file next to the database keeps a second process
// from writing to it at the same time.
func Open(path string, opts ...Options) (*Store, error) {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		path, o.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if o.MaxConnections > 0 {
		db.SetMaxOpenConns(o.MaxConnections)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		lock.release()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, lock: lock}, nil
}

// Close closes the database connection and releases the lock file.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if lerr := s.lock.release(); err == nil {
			err = lerr
		}
		s.lock = nil
	}
	return err
}

// Ping checks the connection and the schema.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return ValidateSchema(s.db)
}

// MigrationStatus reports applied and pending migrations.
func (s *Store) MigrationStatus() (*MigrationStatus, error) {
	return GetMigrationStatus(s.db)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// PutPrediction stores a recognizer prediction for a line. Any existing
// ground truth is kept and the stale distance is cleared.
func (s *Store) PutPrediction(p Prediction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putPrediction(tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func putPrediction(q querier, p Prediction) error {
	truth := p.GroundTruth
	if truth == nil {
		existing, err := groundTruth(q, p.Key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		truth = existing
	}

	fp := Fingerprint(p.Key, p.Label, truth)
	now := time.Now().UnixNano()

	_, err := q.Exec(`
		INSERT INTO annotations (manuscript, page, line, image_path, predicted_label, confidence_score,
			ground_truth, levenshtein_distance, fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
		ON CONFLICT(manuscript, page, line) DO UPDATE SET
			image_path = excluded.image_path,
			predicted_label = excluded.predicted_label,
			confidence_score = excluded.confidence_score,
			ground_truth = excluded.ground_truth,
			levenshtein_distance = NULL,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at`,
		p.Key.Manuscript, p.Key.Page, p.Key.Line, p.ImagePath, p.Label, p.Confidence,
		nullString(truth), fp[:], now, now,
	)
	if err != nil {
		return fmt.Errorf("put prediction %s: %w", p.Key, err)
	}
	return nil
}

// SetGroundTruth records the annotator's label for a line and returns the
// previous ground truth ("" if none). A line without a prediction is
// created with an empty predicted label.
func (s *Store) SetGroundTruth(k Key, label string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous string
	var predicted string
	var prevTruth sql.NullString
	err = tx.QueryRow(`
		SELECT predicted_label, ground_truth FROM annotations
		WHERE manuscript = ? AND page = ? AND line = ?`,
		k.Manuscript, k.Page, k.Line,
	).Scan(&predicted, &prevTruth)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := putPrediction(tx, Prediction{Key: k, GroundTruth: &label}); err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("get annotation %s: %w", k, err)
	default:
		previous = prevTruth.String
		fp := Fingerprint(k, predicted, &label)
		if _, err := tx.Exec(`
			UPDATE annotations SET ground_truth = ?, levenshtein_distance = NULL, fingerprint = ?, updated_at = ?
			WHERE manuscript = ? AND page = ? AND line = ?`,
			label, fp[:], time.Now().UnixNano(), k.Manuscript, k.Page, k.Line,
		); err != nil {
			return "", fmt.Errorf("set ground truth %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return previous, nil
}

// SetDistance stores the edit distance between prediction and ground truth.
func (s *Store) SetDistance(k Key, distance int) error {
	result, err := s.db.Exec(`
		UPDATE annotations SET levenshtein_distance = ?, updated_at = ?
		WHERE manuscript = ? AND page = ? AND line = ?`,
		distance, time.Now().UnixNano(), k.Manuscript, k.Page, k.Line,
	)
	if err != nil {
		return fmt.Errorf("set distance %s: %w", k, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("set distance %s: %w", k, ErrNotFound)
	}
	return nil
}

const annotationColumns = `id, manuscript, page, line, image_path, predicted_label, confidence_score,
	ground_truth, levenshtein_distance, fingerprint, created_at, updated_at`

// Get retrieves the annotation for a line.
func (s *Store) Get(k Key) (*Annotation, error) {
	row := s.db.QueryRow(`SELECT `+annotationColumns+` FROM annotations
		WHERE manuscript = ? AND page = ? AND line = ?`,
		k.Manuscript, k.Page, k.Line,
	)
	a, err := scanAnnotation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", k, ErrNotFound)
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

// ListPage returns the annotations of one page ordered by line.
func (s *Store) ListPage(manuscript, page string) ([]Annotation, error) {
	rows, err := s.db.Query(`SELECT `+annotationColumns+` FROM annotations
		WHERE manuscript = ? AND page = ?
		ORDER BY line ASC`, manuscript, page,
	)
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()

	return scanAnnotations(rows)
}

// ListManuscript returns every annotation of a manuscript ordered by page
// and line. An empty manuscript lists the whole store.
func (s *Store) ListManuscript(manuscript string) ([]Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations`
	var args []any
	if manuscript != "" {
		query += ` WHERE manuscript = ?`
		args = append(args, manuscript)
	}
	query += ` ORDER BY manuscript ASC, page ASC, line ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query manuscript: %w", err)
	}
	defer rows.Close()

	return scanAnnotations(rows)
}

// Manuscripts returns the distinct manuscript names in the store.
func (s *Store) Manuscripts() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT manuscript FROM annotations ORDER BY manuscript`)
	if err != nil {
		return nil, fmt.Errorf("query manuscripts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan manuscript: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manuscripts: %w", err)
	}
	return names, nil
}

// LogRecognition appends a recognizer output and returns its ID.
func (s *Store) LogRecognition(r *Recognition) (int64, error) {
	return logRecognition(s.db, r)
}

func logRecognition(q querier, r *Recognition) (int64, error) {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	result, err := q.Exec(`
		INSERT INTO recognition_logs (image_path, predicted_label, confidence_score, timestamp, manuscript, page)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ImagePath, r.Predicted, r.Confidence, ts.UnixNano(), r.Manuscript, r.Page,
	)
	if err != nil {
		return 0, fmt.Errorf("insert recognition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// Recognitions returns logged recognizer outputs for a manuscript, oldest
// first. An empty manuscript returns all of them.
func (s *Store) Recognitions(manuscript string) ([]Recognition, error) {
	query := `SELECT id, image_path, predicted_label, confidence_score, timestamp, manuscript, page
		FROM recognition_logs`
	var args []any
	if manuscript != "" {
		query += ` WHERE manuscript = ?`
		args = append(args, manuscript)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recognitions: %w", err)
	}
	defer rows.Close()

	var logs []Recognition
	for rows.Next() {
		var r Recognition
		var ts int64
		if err := rows.Scan(&r.ID, &r.ImagePath, &r.Predicted, &r.Confidence, &ts, &r.Manuscript, &r.Page); err != nil {
			return nil, fmt.Errorf("scan recognition: %w", err)
		}
		r.Timestamp = time.Unix(0, ts)
		logs = append(logs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recognitions: %w", err)
	}

	return logs, nil
}

func groundTruth(q querier, k Key) (*string, error) {
	var truth sql.NullString
	err := q.QueryRow(`
		SELECT ground_truth FROM annotations
		WHERE manuscript = ? AND page = ? AND line = ?`,
		k.Manuscript, k.Page, k.Line,
	).Scan(&truth)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ground truth %s: %w", k, err)
	}
	if !truth.Valid {
		return nil, nil
	}
	return &truth.String, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (*Annotation, error) {
	var a Annotation
	var truth sql.NullString
	var distance sql.NullInt64
	var fingerprint []byte
	var created, updated int64

	if err := row.Scan(&a.ID, &a.Key.Manuscript, &a.Key.Page, &a.Key.Line, &a.ImagePath, &a.Predicted,
		&a.Confidence, &truth, &distance, &fingerprint, &created, &updated); err != nil {
		return nil, err
	}

	if truth.Valid {
		a.GroundTruth = &truth.String
	}
	if distance.Valid {
		d := int(distance.Int64)
		a.Distance = &d
	}
	copy(a.Fingerprint[:], fingerprint)
	a.CreatedAt = time.Unix(0, created)
	a.UpdatedAt = time.Unix(0, updated)

	return &a, nil
}

// scanAnnotations is a helper to scan annotation rows into a slice.
func scanAnnotations(rows *sql.Rows) ([]Annotation, error) {
	var list []Annotation

	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		list = append(list, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}

	return list, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
