package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson"
)

// SqliteStore stores all buckets in a single SQLite database. Records are
// encoded as BSON documents.
//
// Tables:
//
//	records(bucket, key, data)  PRIMARY KEY (bucket, key)
type SqliteStore struct {
	db *sql.DB
}

// bsonRecord is the on-disk shape of a Record.
type bsonRecord struct {
	Data    bson.M     `bson:"data"`
	Links   []bsonLink `bson:"links,omitempty"`
	Indexes bson.M     `bson:"indexes,omitempty"`
}

type bsonLink struct {
	Bucket string `bson:"bucket"`
	Key    string `bson:"key"`
	Tag    string `bson:"tag"`
}

// NewSqliteStore opens (creating if needed) the database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (bucket, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Get(ctx context.Context, bucket, key string, opts ...ReadOption) (*Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE bucket = ? AND key = ?",
		bucket, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBSON(raw)
}

func (s *SqliteStore) Put(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) error {
	raw, err := encodeBSON(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (bucket, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET data = excluded.data`,
		bucket, key, raw,
	)
	return err
}

// PutIfAbsent implements ConditionalPutter.
func (s *SqliteStore) PutIfAbsent(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) (bool, error) {
	raw, err := encodeBSON(rec)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (bucket, key, data) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, key) DO NOTHING`,
		bucket, key, raw,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SqliteStore) Delete(ctx context.Context, bucket, key string, opts ...WriteOption) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE bucket = ? AND key = ?",
		bucket, key,
	)
	return err
}

func (s *SqliteStore) Exists(ctx context.Context, bucket, key string, opts ...ReadOption) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE bucket = ? AND key = ?",
		bucket, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func encodeBSON(rec *Record) ([]byte, error) {
	if rec == nil {
		rec = &Record{}
	}
	doc := bsonRecord{
		Data:    bson.M(rec.Data),
		Indexes: bson.M(rec.Indexes),
	}
	if doc.Data == nil {
		doc.Data = bson.M{}
	}
	for _, l := range rec.Links {
		doc.Links = append(doc.Links, bsonLink(l))
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

func decodeBSON(raw []byte) (*Record, error) {
	var doc bsonRecord
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	rec := &Record{
		Data: normalizeMap(map[string]any(doc.Data)),
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if len(doc.Indexes) > 0 {
		rec.Indexes = normalizeMap(map[string]any(doc.Indexes))
	}
	for _, l := range doc.Links {
		rec.Links = append(rec.Links, Link(l))
	}
	return rec, nil
}
