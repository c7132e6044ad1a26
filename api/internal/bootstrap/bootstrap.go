package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"step-tutor/api/internal/config"
	"step-tutor/api/internal/handle"
	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/llm"
	"step-tutor/api/internal/llm/gemini"
	"step-tutor/api/internal/llm/openai"
	"step-tutor/api/internal/prompt"
	"step-tutor/api/internal/store"
	"step-tutor/api/internal/tutor"
)

// Deps is everything a front-end (HTTP or Telegram) needs to serve steps.
type Deps struct {
	Config *config.Config
	Engine llm.Engine
	Tutor  *tutor.Service
	Users  *identity.MockResolver
	// DB is nil when the journal is disabled.
	DB *sql.DB
}

func Build(ctx context.Context, cfg *config.Config) (*Deps, error) {
	engine, err := SelectEngine(cfg)
	if err != nil {
		return nil, err
	}

	d := &Deps{
		Config: cfg,
		Engine: engine,
		Tutor:  tutor.NewService(engine, prompt.Default()),
		Users:  identity.NewMockResolver(cfg.MockPlan, cfg.MockEmail),
	}

	if cfg.DatabaseURL != "" {
		db, err := OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := store.NewStepRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal schema: %w", err)
		}
		d.DB = db
		d.Tutor.WithJournal(repo)
		log.WithField("db", SafeDSNSummary(cfg.DatabaseURL)).Info("journal.enabled")
	} else {
		log.Info("journal.disabled")
	}

	log.WithFields(log.Fields{
		"engine": engine.Name(),
		"model":  engine.GetModel(),
	}).Info("engine.selected")
	return d, nil
}

// Health builds the liveness handler, reporting the journal database only
// when one is open.
func (d *Deps) Health(service, version string) *handle.HealthHandler {
	var db handle.Pinger
	if d.DB != nil {
		db = d.DB
	}
	return handle.NewHealthHandler(service, version, d.Engine.Name(), d.Engine.GetModel(), db)
}

func (d *Deps) Close() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// SelectEngine builds both engines and returns the configured one. A missing
// API key is not an error here; it fails the first step instead.
func SelectEngine(cfg *config.Config) (llm.Engine, error) {
	engines := &llm.Engines{
		OpenAI: openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel).WithBaseURL(cfg.OpenAIBaseURL),
		Gemini: gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
	}
	return engines.GetEngine(cfg.LLMProvider)
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

// SafeDSNSummary describes a DSN without the password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
