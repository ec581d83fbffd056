package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/auth"
	"github.com/lu-zhengda/mailpilot/internal/config"
	"github.com/lu-zhengda/mailpilot/internal/embedding"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/llm"
	"github.com/lu-zhengda/mailpilot/internal/logging"
	"github.com/lu-zhengda/mailpilot/internal/provider"
	"github.com/lu-zhengda/mailpilot/internal/provider/gmail"
	"github.com/lu-zhengda/mailpilot/internal/secure"
	"github.com/lu-zhengda/mailpilot/internal/store"
	"github.com/lu-zhengda/mailpilot/internal/store/sqlite"
	"github.com/lu-zhengda/mailpilot/internal/vector"
)

// runtime holds every service a command may need, wired from config.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlite.DB
	journal *journal.Journal
	oauth   *oauth2.Config
	auth    *auth.Service
	tokens  *auth.Tokens
	vectors vector.Index
	gen     llm.Generator

	embedder *embedding.Service
	ingestor *app.Ingestor
	searcher *app.Searcher
	drafter  *app.Drafter
	digester *app.Digester
	scorer   *app.Scorer

	closers []func() error
}

// newRuntime loads config and opens every backing service. Unless verbose
// is set, only warnings are logged.
func newRuntime(ctx context.Context, verbose bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if !verbose {
		level = "warn"
	}
	logger, err := logging.New(level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() error { logger.Sync(); return nil })
	if err := rt.open(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	cfg := rt.cfg
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)
	rt.journal = journal.New(db, rt.logger)

	masterKey, err := rt.masterKey()
	if err != nil {
		return err
	}
	cipher, err := secure.NewCipher(masterKey)
	if err != nil {
		return err
	}
	secret := cfg.Security.SecretKey
	if secret == "" {
		secret = masterKey
	}
	rt.tokens, err = auth.NewTokens(secret, cfg.AccessTokenTTL())
	if err != nil {
		return err
	}

	var states auth.StateStore = auth.NewMemoryStateStore()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		states = auth.NewRedisStateStore(rdb)
	}

	rt.oauth = gmail.OAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURI)
	perSecond := cfg.RateLimits.GmailPerSecond
	rt.auth, err = auth.NewService(auth.Deps{
		OAuth:    rt.oauth,
		Accounts: db,
		States:   states,
		Cipher:   cipher,
		Journal:  rt.journal,
		Logger:   rt.logger,
		NewProvider: func(ctx context.Context, ts oauth2.TokenSource) (provider.MailProvider, error) {
			return gmail.New(ctx, ts, perSecond)
		},
	})
	if err != nil {
		return err
	}

	engine, err := rt.openGenAI(ctx)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rt.vectors = db.Vectors(cfg.Vector.Collection)
	rt.embedder = embedding.NewService(db, rt.vectors, engine, cfg.Vector.Collection, cfg.Processing.EmbeddingBatchSize, rt.logger)
	rt.ingestor = app.NewIngestor(db, rt.auth, rt.embedder, rt.journal, cfg.Processing.MaxEmailsPerSync, rt.logger)
	rt.searcher = app.NewSearcher(db, rt.vectors, engine, rt.journal, loc, rt.logger)
	rt.drafter = app.NewDrafter(db, rt.gen, rt.auth, rt.journal, rt.logger)
	rt.digester = app.NewDigester(db, rt.gen, rt.journal, loc, rt.logger)
	rt.scorer = app.NewScorer(db)
	return nil
}

// openGenAI returns the embedding engine and sets the text generator. Without
// an API key embeddings fall back to local feature hashing and AI drafting is
// unavailable.
func (rt *runtime) openGenAI(ctx context.Context) (embedding.Engine, error) {
	cfg := rt.cfg.GenAI
	if cfg.APIKey == "" {
		rt.logger.Warn("no GenAI API key configured; using local hash embeddings")
		return embedding.NewHashEngine(cfg.Dimensions), nil
	}
	client, err := embedding.NewClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	perMinute := rt.cfg.RateLimits.GeminiPerMinute
	rt.gen = llm.NewGemini(client, cfg.ChatModel, perMinute)
	return embedding.NewGenAIEngine(client, cfg.EmbeddingModel, cfg.Dimensions, perMinute)
}

// masterKey returns the token encryption key from config, falling back to
// the OS keyring.
func (rt *runtime) masterKey() (string, error) {
	if key := rt.cfg.Security.EncryptionKey; key != "" {
		return key, nil
	}
	key, err := store.NewKeyringSecretStore().MasterKey()
	if err != nil {
		return "", fmt.Errorf("no encryption key configured and keyring unavailable: %w", err)
	}
	return key, nil
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// account resolves --account, falling back to the user's first active
// account.
func (rt *runtime) account(ctx context.Context, id int64) (int64, error) {
	if id != 0 {
		if _, err := rt.auth.Account(ctx, userFlag, id); err != nil {
			return 0, fmt.Errorf("account %d: %w", id, err)
		}
		return id, nil
	}
	accounts, err := rt.auth.Accounts(ctx, userFlag)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, a := range accounts {
		if a.IsActive {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("no active accounts for user %q; run 'mailpilot account connect' first", userFlag)
}

// openDB creates the data directory and opens the SQLite database.
func openDB(cfg *config.Config) (*sqlite.DB, error) {
	path := cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.toml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
