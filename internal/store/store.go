// Package store archives ingested articles and published digests in SQLite so a run can be
// repeated without hitting the feeds again.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yf-chau/news-summary/internal/core"
)

// DBFile is the archive file name inside the data directory.
const DBFile = "newsdigest.db"

// Store represents the SQLite-based article archive
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
		now:  func() time.Time { return time.Now().UTC() },
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	// Articles are keyed by URL; the first id an article was ingested under is kept.
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		url TEXT PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		headline TEXT,
		summary TEXT,
		content TEXT,
		published DATETIME,
		source TEXT,
		categories TEXT,
		date_fetched DATETIME
	);`

	digestsTable := `
	CREATE TABLE IF NOT EXISTS digests (
		run_dir TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		attempt_id INTEGER,
		score INTEGER,
		date_generated DATETIME
	);`

	publishedIndex := `CREATE INDEX IF NOT EXISTS idx_articles_published ON articles (published);`

	for _, stmt := range []string{articlesTable, digestsTable, publishedIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArticles archives articles in one transaction and returns how many were new.
func (s *Store) SaveArticles(articles []core.Article) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR IGNORE INTO articles
	(url, id, headline, summary, content, published, source, categories, date_fetched)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	fetched := s.now()
	added := 0
	for _, a := range articles {
		categories, err := json.Marshal(a.Categories)
		if err != nil {
			return 0, fmt.Errorf("failed to encode categories: %w", err)
		}
		res, err := stmt.Exec(a.URL, a.ID, a.Headline, a.Summary, a.Content, a.Published.UTC(), a.Source, string(categories), fetched)
		if err != nil {
			return 0, fmt.Errorf("failed to save article %s: %w", a.URL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit articles: %w", err)
	}
	return added, nil
}

// LoadSince returns archived articles published strictly after cutoff, newest first.
func (s *Store) LoadSince(cutoff time.Time) ([]core.Article, error) {
	rows, err := s.db.Query(`
	SELECT id, headline, summary, content, published, source, url, categories
	FROM articles
	WHERE published > ?
	ORDER BY published DESC, url`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// GetArticleByURL returns the archived article for url, or nil when it is unknown.
func (s *Store) GetArticleByURL(url string) (*core.Article, error) {
	row := s.db.QueryRow(`
	SELECT id, headline, summary, content, published, source, url, categories
	FROM articles
	WHERE url = ?`, url)

	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (core.Article, error) {
	var (
		a          core.Article
		categories string
	)
	err := row.Scan(&a.ID, &a.Headline, &a.Summary, &a.Content, &a.Published, &a.Source, &a.URL, &categories)
	if err != nil {
		return core.Article{}, fmt.Errorf("failed to scan article: %w", err)
	}
	a.Published = a.Published.UTC()
	if categories != "" && categories != "null" {
		if err := json.Unmarshal([]byte(categories), &a.Categories); err != nil {
			return core.Article{}, fmt.Errorf("failed to decode categories of %s: %w", a.URL, err)
		}
	}
	return a, nil
}

// Digest is an archived, selected digest.
type Digest struct {
	RunDir        string
	Title         string
	Content       string
	AttemptID     int
	Score         int
	DateGenerated time.Time
}

// SaveDigest records the digest chosen for a run. Re-running evaluation replaces it.
func (s *Store) SaveDigest(d Digest) error {
	if d.DateGenerated.IsZero() {
		d.DateGenerated = s.now()
	}
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO digests
	(run_dir, title, content, attempt_id, score, date_generated)
	VALUES (?, ?, ?, ?, ?, ?)`,
		d.RunDir, d.Title, d.Content, d.AttemptID, d.Score, d.DateGenerated.UTC())
	if err != nil {
		return fmt.Errorf("failed to save digest: %w", err)
	}
	return nil
}

// LatestDigests returns up to limit digests, newest first.
func (s *Store) LatestDigests(limit int) ([]Digest, error) {
	rows, err := s.db.Query(`
	SELECT run_dir, title, content, attempt_id, score, date_generated
	FROM digests
	ORDER BY date_generated DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query digests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Digest
	for rows.Next() {
		var d Digest
		if err := rows.Scan(&d.RunDir, &d.Title, &d.Content, &d.AttemptID, &d.Score, &d.DateGenerated); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats represents archive statistics
type Stats struct {
	ArticleCount int
	DigestCount  int
	Size         int64
	LastUpdated  time.Time
}

// GetStats returns statistics about the archive
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	queries := map[string]*int{
		"SELECT COUNT(*) FROM articles": &stats.ArticleCount,
		"SELECT COUNT(*) FROM digests":  &stats.DigestCount,
	}

	for query, target := range queries {
		if err := s.db.QueryRow(query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.Size = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}

	return stats, nil
}

// Prune removes articles fetched before maxAge ago and returns how many were deleted.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	res, err := s.db.Exec("DELETE FROM articles WHERE date_fetched < ?", s.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
