package main

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	fbdirectory "github.com/mihaimyh/billingsync/directory/firebase"
	dirmemory "github.com/mihaimyh/billingsync/directory/memory"
	"github.com/mihaimyh/billingsync/internal/config"
	"github.com/mihaimyh/billingsync/pkg/billingsync"
	"github.com/mihaimyh/billingsync/storage/firestore"
	"github.com/mihaimyh/billingsync/storage/memory"
	"github.com/mihaimyh/billingsync/storage/postgres"
	"github.com/mihaimyh/billingsync/storage/redis"
)

// pinger is implemented by backends that can report reachability
type pinger interface {
	Ping(ctx context.Context) error
}

type backends struct {
	store     billingsync.Store
	directory billingsync.Directory
	pingers   []pinger
	closers   []func()
}

// Close releases backend clients in reverse order of creation
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger billingsync.Logger) (*backends, error) {
	b := &backends{}

	var app *firebase.App
	if cfg.NeedsFirebase() {
		var err error
		app, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if err := b.openStore(ctx, cfg, app); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openDirectory(ctx, cfg, app); err != nil {
		b.Close()
		return nil, err
	}

	if cfg.DirectoryBackend == config.DirectoryMemory {
		logger.Warn("using in-memory directory; lookups miss unless PROVISION_MISSING_USERS is set")
	}
	return b, nil
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

func (b *backends) openStore(ctx context.Context, cfg *config.Config, app *firebase.App) error {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })

		store, err := firestore.New(client, firestore.Config{CustomersCollection: cfg.CustomersCollection})
		if err != nil {
			return err
		}
		b.store = store

	case config.StorePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresDSN

		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, store.Close)
		b.pingers = append(b.pingers, store)
		b.store = store

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		store, err := redis.New(client, redis.DefaultConfig())
		if err != nil {
			return err
		}
		b.pingers = append(b.pingers, store)
		b.store = store

	case config.StoreMemory:
		b.store = memory.New()

	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return nil
}

func (b *backends) openDirectory(ctx context.Context, cfg *config.Config, app *firebase.App) error {
	switch cfg.DirectoryBackend {
	case config.DirectoryFirebase:
		dir, err := fbdirectory.NewFromApp(ctx, app)
		if err != nil {
			return err
		}
		b.directory = dir

	case config.DirectoryMemory:
		b.directory = dirmemory.New()

	default:
		return fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
	return nil
}
