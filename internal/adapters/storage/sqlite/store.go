// Package sqlite es el substrato de persistencia de una réplica local:
// el change log, el sharing ledger y el device set en un archivo SQLite
// con WAL. Es el storage que hace durable el append antes de que
// Append/Grant devuelvan éxito.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

// Store envuelve la conexión y fabrica los repos de cada dominio.
type Store struct {
	db *sql.DB
}

// Open crea o abre la base en path. Configura:
//   - WAL para lecturas concurrentes durante escrituras
//   - synchronous NORMAL (balance durabilidad/performance)
//   - busy_timeout de 5s para contención de locks
//
// Idempotente: seguro de llamar múltiples veces sobre el mismo archivo.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite soporta un solo writer; limitar el pool evita SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
