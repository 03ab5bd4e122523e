package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// vectorValue converts an embedding into the driver-appropriate column
// value: a pgvector value on postgres, JSON text on sqlite.
func (db *DB) vectorValue(vec []float32) driver.Valuer {
	if db.dbType == "postgres" {
		return pgvector.NewVector(vec)
	}
	return jsonVector(vec)
}

// vectorScanner returns a scan target whose Vector method yields the
// decoded embedding after the row scan completes.
func (db *DB) vectorScanner() vectorTarget {
	if db.dbType == "postgres" {
		return &pgvectorTarget{}
	}
	return &jsonVectorTarget{}
}

type vectorTarget interface {
	// Dest is passed to rows.Scan.
	Dest() any
	Vector() []float32
}

type jsonVector []float32

func (v jsonVector) Value() (driver.Value, error) {
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return string(data), nil
}

type jsonVectorTarget struct {
	raw []byte
}

func (t *jsonVectorTarget) Dest() any { return &t.raw }

func (t *jsonVectorTarget) Vector() []float32 {
	if len(t.raw) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(t.raw, &vec); err != nil {
		return nil
	}
	return vec
}

type pgvectorTarget struct {
	vec pgvector.Vector
}

func (t *pgvectorTarget) Dest() any { return &t.vec }

func (t *pgvectorTarget) Vector() []float32 { return t.vec.Slice() }
