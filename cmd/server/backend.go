package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/backend/memory"
	"gymhub/backend/internal/backend/postgres"
	"gymhub/backend/internal/backend/supabase"
	"gymhub/backend/internal/config"
	"gymhub/backend/internal/db"
	"gymhub/backend/internal/security"
)

// infra is the data backend selected by BACKEND_DRIVER.
type infra struct {
	store backend.Store
	files backend.FileStorage
	authn backend.Authenticator
	conn  *sql.DB
}

// Close releases the database pool, if any.
func (i *infra) Close() {
	if i.conn != nil {
		_ = i.conn.Close()
	}
}

func openBackend(cfg *config.Config, zl *zap.Logger) (*infra, error) {
	var client *supabase.Client
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		c, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseServiceKey, Logger: zl})
		if err != nil {
			return nil, fmt.Errorf("supabase: %w", err)
		}
		client = c
	}

	out := &infra{}
	switch cfg.BackendDriver {
	case config.DriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		out.conn = conn
		out.store = postgres.NewStore(conn)
		if client != nil {
			out.files = supabase.NewStorage(client)
		}
	case config.DriverSupabase:
		out.store = supabase.NewStore(client)
		out.files = supabase.NewStorage(client)
	case config.DriverMemory:
		mem := memory.New()
		out.store = mem
		out.files = mem.Files()
		zl.Warn("using in-memory backend; data is lost on restart")
	}

	if out.files == nil {
		// Photos uploaded without object storage live only as long as the process.
		out.files = memory.New().Files()
		zl.Warn("no object storage configured; gym photos are kept in memory")
	}

	switch {
	case cfg.SupabaseJWTSecret != "":
		out.authn = security.NewTokenVerifier(cfg.SupabaseJWTSecret, cfg.JWTAudience)
	case client != nil:
		out.authn = supabase.NewAuth(client)
	default:
		out.Close()
		return nil, fmt.Errorf("no way to verify access tokens: set SUPABASE_JWT_SECRET or SUPABASE_URL")
	}
	return out, nil
}
