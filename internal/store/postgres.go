package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	u "labelgen/internal/utils"
)

// Postgres keeps rendered labels in a single table keyed by fingerprint.
type Postgres struct {
	db  *sql.DB
	dsn string
	ttl time.Duration
}

func postgresPort(cfg u.PostgresConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

func postgresDSN(cfg u.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	port := postgresPort(cfg)
	// IPv6 literals and explicit host:port strings.
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	case strings.Count(hostPort, ":") >= 2:
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	dsn := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		dsn.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		dsn.User = url.User(cfg.User)
	}
	q := dsn.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	dsn.RawQuery = q.Encode()
	return dsn.String(), nil
}

// OpenPostgres connects through pgx, pings the server and makes sure the
// label_cache table exists.
func OpenPostgres(cfg u.PostgresConfig, ttl time.Duration) (*Postgres, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	p := newPostgres(db, dsn, ttl)
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("label_cache schema: %w", err)
	}
	return p, nil
}

func newPostgres(db *sql.DB, dsn string, ttl time.Duration) *Postgres {
	return &Postgres{db: db, dsn: dsn, ttl: ttl}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	ddl1 := `CREATE TABLE IF NOT EXISTS label_cache (
		fingerprint TEXT PRIMARY KEY,
		body BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ
	);`
	ddl2 := `CREATE INDEX IF NOT EXISTS idx_label_cache_expires_at ON label_cache (expires_at);`
	if _, err := p.db.ExecContext(ctx, ddl1); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, ddl2); err != nil {
		return err
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	err := p.db.QueryRowContext(ctx,
		`SELECT body, created_at FROM label_cache
		 WHERE fingerprint = $1 AND (expires_at IS NULL OR expires_at > now());`,
		key,
	).Scan(&e.Body, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, e Entry) error {
	var expires sql.NullTime
	if p.ttl > 0 {
		expires = sql.NullTime{Time: e.CreatedAt.Add(p.ttl), Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO label_cache (fingerprint, body, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (fingerprint) DO UPDATE
		 SET body = EXCLUDED.body, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at;`,
		key, e.Body, e.CreatedAt, expires,
	)
	return err
}

// Purge deletes expired rows and returns how many were removed.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM label_cache WHERE expires_at IS NOT NULL AND expires_at <= now();`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgePeriodically removes expired rows at the given interval until ctx
// is cancelled.
func (p *Postgres) PurgePeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				u.Error("Failed to purge expired labels", "error", err)
				continue
			}
			if n > 0 {
				u.Debug("Purged expired labels", "rows", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
