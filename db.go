package cropsight

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed db/latest_schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

// DB is a sqlite-backed PrototypeStore. Vectors are stored as big-endian
// float32 blobs.
type DB struct {
	mu sync.Mutex
	db *sql.DB

	filepath string
}

var _ PrototypeStore = (*DB)(nil)

func NewDB(ctx context.Context, fname string) (*DB, error) {
	// Open the DB but flip on the cleaner timestamps from Go
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		return nil, err
	}

	return &DB{db: sqldb, filepath: fname}, nil
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.db.Close()
}

// Put inserts a new prototype row. The unique index on label (COLLATE NOCASE)
// makes sqlite the arbiter for racing inserts: one wins, the other comes back
// as *DuplicateClassError.
func (db *DB) Put(ctx context.Context, p *Prototype) error {
	blob, err := encodeVector(p.Vector)
	if err != nil {
		return err
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO prototypes
		(label, vector, sample_count, est_accuracy, created_at)
		VALUES (?,?,?,?,?)
		`,
		p.Label, blob, p.SampleCount, p.EstAccuracy, p.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &DuplicateClassError{Label: p.Label}
		}
		return err
	}
	return nil
}

// Get retrieves the prototype for the given label, matched case-insensitively.
func (db *DB) Get(ctx context.Context, label string) (*Prototype, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT label, vector, sample_count, est_accuracy, created_at
		FROM prototypes
		WHERE label=? COLLATE NOCASE`, label)

	p, err := scanPrototype(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

// All returns every stored prototype ordered by label.
func (db *DB) All(ctx context.Context) ([]*Prototype, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT label, vector, sample_count, est_accuracy, created_at
		FROM prototypes
		ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var protos []*Prototype
	for rows.Next() {
		p, err := scanPrototype(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning prototype: %w", err)
		}
		protos = append(protos, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prototypes: %w", err)
	}

	return protos, nil
}

// Count returns the number of stored prototypes.
func (db *DB) Count(ctx context.Context) (int, error) {
	row := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prototypes`)
	if row.Err() != nil {
		return 0, row.Err()
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrototype(row rowScanner) (*Prototype, error) {
	p := &Prototype{}
	var blob []byte
	err := row.Scan(&p.Label, &blob, &p.SampleCount, &p.EstAccuracy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.Vector, err = decodeVector(blob)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func encodeVector(vector []float32) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(len(vector) * 4)
	if err := binary.Write(buf, binary.BigEndian, vector); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.BigEndian, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}
