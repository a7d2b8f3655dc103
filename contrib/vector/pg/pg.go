// Package pg provides a pgvector-backed semantic index implementing
// vector.SearchService over PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	cfgpkg "github.com/sweetpotato0/deepresearch/config"
	"github.com/sweetpotato0/deepresearch/embedding"
	"github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/vector"
)

// Config holds pgvector configuration
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension; defaults to the embedder's
	TableName string // Table name (default: corpus_chunks)
}

// DefaultConfig returns default pgvector configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "deepresearch",
		SSLMode:   "disable",
		TableName: "corpus_chunks",
	}
}

// Index is a pgvector-backed semantic index over corpus chunks.
type Index struct {
	db        *sql.DB
	embedder  embedding.Embedder
	dimension int
	tableName string
}

// New connects to PostgreSQL, enables pgvector and prepares the chunk table.
func New(config *Config, embedder embedding.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required: %w", errors.ErrInvalidInput)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.TableName == "" {
		config.TableName = "corpus_chunks"
	}
	dimension := config.Dimension
	if dimension <= 0 {
		dimension = embedder.Dimension()
	}
	if err := cfgpkg.ValidatePGVectorConfig(config.Host, config.Port, config.User,
		config.DBName, config.SSLMode, dimension, config.TableName); err != nil {
		return nil, fmt.Errorf("invalid pgvector configuration: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	ix := &Index{
		db:        db,
		embedder:  embedder,
		dimension: dimension,
		tableName: config.TableName,
	}

	if err := ix.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}

	return ix, nil
}

func (ix *Index) setup(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		chunk_id VARCHAR(255) PRIMARY KEY,
		link_id VARCHAR(255) NOT NULL,
		chunk_type VARCHAR(64) NOT NULL,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, ix.tableName, ix.dimension)

	if _, err := ix.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_link_idx ON %s (link_id, chunk_type)",
		ix.tableName, ix.tableName)
	if _, err := ix.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to create link index: %w", err)
	}

	return nil
}

// Add embeds one chunk of text and upserts it under the given ids.
func (ix *Index) Add(ctx context.Context, chunkID, linkID, chunkType, text string) error {
	if chunkID == "" || linkID == "" {
		return fmt.Errorf("chunk id and link id are required: %w", errors.ErrInvalidInput)
	}

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", chunkID, err)
	}
	if len(vec) != ix.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", ix.dimension, len(vec))
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (chunk_id, link_id, chunk_type, text, embedding)
	VALUES ($1, $2, $3, $4, $5::vector)
	ON CONFLICT (chunk_id) DO UPDATE SET
		link_id = EXCLUDED.link_id,
		chunk_type = EXCLUDED.chunk_type,
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, ix.tableName)

	_, err = ix.db.ExecContext(ctx, query, chunkID, linkID, chunkType, text, vectorToString(vec))
	if err != nil {
		return fmt.Errorf("failed to add chunk: %w", err)
	}

	return nil
}

// Search implements vector.SearchService using pgvector cosine distance.
func (ix *Index) Search(ctx context.Context, q *vector.Query) ([]*vector.Result, error) {
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("query text is required: %w", errors.ErrInvalidInput)
	}

	queryVec, err := ix.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVec) != ix.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", ix.dimension, len(queryVec))
	}

	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	args := []any{vectorToString(queryVec)}
	var where []string
	if len(q.LinkIDs) > 0 {
		args = append(args, pq.Array(q.LinkIDs))
		where = append(where, fmt.Sprintf("link_id = ANY($%d)", len(args)))
	}
	if len(q.ChunkTypes) > 0 {
		args = append(args, pq.Array(q.ChunkTypes))
		where = append(where, fmt.Sprintf("chunk_type = ANY($%d)", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, topK)
	querySQL := fmt.Sprintf(`
	SELECT chunk_id, link_id, chunk_type, text, embedding <=> $1::vector AS distance
	FROM %s
	%s
	ORDER BY distance
	LIMIT $%d
	`, ix.tableName, whereClause, len(args))

	rows, err := ix.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*vector.Result, 0, topK)
	for rows.Next() {
		var chunkID, linkID, chunkType, text string
		var distance float64

		if err := rows.Scan(&chunkID, &linkID, &chunkType, &text, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		results = append(results, &vector.Result{
			LinkID:    linkID,
			ChunkID:   chunkID,
			ChunkType: chunkType,
			Score:     float32(1 - distance),
			Preview:   text,
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return results, nil
}

// DeleteLink removes every chunk belonging to a link id.
func (ix *Index) DeleteLink(ctx context.Context, linkID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE link_id = $1", ix.tableName)
	result, err := ix.db.ExecContext(ctx, query, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("link %s: %w", linkID, errors.ErrNotFound)
	}

	return nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", ix.tableName)
	if err := ix.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (ix *Index) Close() error {
	return ix.db.Close()
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
