package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
)

const embedBatchSize = 64

// chunkNamespace derives stable chunk ids from their content, so that
// re-indexing the same document replaces rather than duplicates it.
var chunkNamespace = uuid.MustParse("6f1d3c52-8a0e-4c4b-9a57-0c2b7e5d9f11")

// Document is one pre-chunked piece of text to index.
type Document struct {
	ID     string
	Source Source
	Text   string
}

// SQLiteIndex stores chunk embeddings in the chunks table and answers
// queries by brute-force squared Euclidean distance computed in Go. This
// suits a knowledge base of a few thousand chunks; modernc.org/sqlite has no
// vector extension.
type SQLiteIndex struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
}

// NewSQLiteIndex returns an index over db. The chunks table must exist
// (store migration 0001).
func NewSQLiteIndex(db *sql.DB, embedder Embedder, logger *slog.Logger) *SQLiteIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteIndex{db: db, embedder: embedder, logger: logger}
}

// Available implements Retriever.
func (x *SQLiteIndex) Available() bool { return x != nil && x.db != nil && x.embedder != nil }

// Upsert embeds and stores docs, replacing chunks with the same id.
func (x *SQLiteIndex) Upsert(ctx context.Context, docs []Document) (int, error) {
	if !x.Available() {
		return 0, ErrUnavailable
	}
	stored := 0
	for _, batch := range pie.Chunk(docs, embedBatchSize) {
		texts := pie.Map(batch, func(d Document) string { return d.Text })
		vectors, err := x.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("retrieval: embed batch: %w", err)
		}
		if err := x.insert(ctx, batch, vectors); err != nil {
			return stored, err
		}
		stored += len(batch)
	}
	x.logger.Info("retrieval: indexed chunks", "chunks", stored)
	return stored, nil
}

func (x *SQLiteIndex) insert(ctx context.Context, docs []Document, vectors [][]float32) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retrieval: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i, d := range docs {
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("retrieval: marshal embedding: %w", err)
		}
		id := d.ID
		if id == "" {
			id = chunkID(d)
		}
		var page sql.NullInt64
		if d.Source.Page > 0 {
			page = sql.NullInt64{Int64: int64(d.Source.Page), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks (id, source, page, url, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, d.Source.Name, page, sql.NullString{String: d.Source.URL, Valid: d.Source.URL != ""},
			d.Text, string(vec), now,
		); err != nil {
			return fmt.Errorf("retrieval: insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("retrieval: commit: %w", err)
	}
	return nil
}

func chunkID(d Document) string {
	key := d.Source.Name + "\x00" + strconv.Itoa(d.Source.Page) + "\x00" + d.Text
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

type scored struct {
	text     string
	source   Source
	distance float64
}

// Query implements Retriever.
func (x *SQLiteIndex) Query(ctx context.Context, text string, topK int) (ResultSet, error) {
	if !x.Available() {
		return ResultSet{}, ErrUnavailable
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := x.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return ResultSet{}, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return ResultSet{}, fmt.Errorf("retrieval: embedder returned no vector")
	}
	query := vectors[0]

	rows, err := x.db.QueryContext(ctx, "SELECT source, page, url, content, embedding FROM chunks")
	if err != nil {
		return ResultSet{}, fmt.Errorf("retrieval: query chunks: %w", err)
	}
	defer rows.Close()

	var candidates []scored
	for rows.Next() {
		var (
			c         scored
			page      sql.NullInt64
			url       sql.NullString
			embedding string
		)
		if err := rows.Scan(&c.source.Name, &page, &url, &c.text, &embedding); err != nil {
			return ResultSet{}, fmt.Errorf("retrieval: scan chunk: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embedding), &vec); err != nil || len(vec) != len(query) {
			x.logger.Warn("retrieval: skip chunk with unusable embedding", "source", c.source.Name, "err", err)
			continue
		}
		c.source.Page = int(page.Int64)
		c.source.URL = url.String
		c.distance = squaredL2(query, vec)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, fmt.Errorf("retrieval: iterate chunks: %w", err)
	}

	candidates = pie.SortStableUsing(candidates, func(a, b scored) bool { return a.distance < b.distance })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	rs := ResultSet{
		Chunks:    make([]string, len(candidates)),
		Sources:   make([]Source, len(candidates)),
		Distances: make([]float64, len(candidates)),
	}
	for i, c := range candidates {
		rs.Chunks[i], rs.Sources[i], rs.Distances[i] = c.text, c.source, c.distance
	}
	return rs, nil
}

// Count returns the number of indexed chunks.
func (x *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// squaredL2 is the squared Euclidean distance, the default metric of the
// Chroma collections Kiki's relevance thresholds were tuned against.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

var _ Retriever = (*SQLiteIndex)(nil)
