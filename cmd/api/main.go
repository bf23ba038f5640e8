package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/auth"
	"github.com/PaulBabatuyi/chatsync/internal/cache"
	"github.com/PaulBabatuyi/chatsync/internal/chat"
	"github.com/PaulBabatuyi/chatsync/internal/config"
	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/db"
	"github.com/PaulBabatuyi/chatsync/internal/media"
	"github.com/PaulBabatuyi/chatsync/internal/middleware"
	"github.com/PaulBabatuyi/chatsync/internal/presence"
	"github.com/PaulBabatuyi/chatsync/internal/realtime"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
)

// stores is the storage backend selected by STORAGE.
type stores struct {
	users data.UserStore
	chats data.ChatStore
	msgs  data.MessageStore
	ping  func(context.Context) error
	close func(context.Context) error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.close(cctx)
	}()

	// token valid for TOKEN_TTL; JWT_KEYS allows rotation
	jwtMgr := auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.TokenTTL)

	// small burst to allow a couple of quick retries
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiterStore.Stop()

	blobs, err := media.NewDiskStore(cfg.MediaDir)
	if err != nil {
		return err
	}

	dir := presence.NewDirectory()
	router := realtime.NewRouter(dir, log.Named("push"))
	chatSvc := chat.NewService(st.chats, st.msgs, st.users, log.Named("chat"))

	var lcOpts []realtime.LifecycleOption
	if cfg.ValkeyAddr != "" {
		mirror, err := cache.NewPresence(ctx, cfg.ValkeyAddr)
		if err != nil {
			return err
		}
		defer mirror.Close()
		if err := mirror.Reset(ctx); err != nil {
			log.Warn("presence mirror reset failed", zap.Error(err))
		}
		lcOpts = append(lcOpts, realtime.WithMirror(mirror))
		log.Info("presence mirror enabled", zap.String("addr", cfg.ValkeyAddr))
	}
	lifecycle := realtime.NewLifecycle(dir, router, st.users, chatSvc, log.Named("session"), lcOpts...)

	srv := newServer(serverDeps{
		Chat:           chatSvc,
		Users:          st.users,
		Auth:           jwtMgr,
		Push:           router,
		Lifecycle:      lifecycle,
		Blobs:          blobs,
		Signer:         media.NewSigner(cfg.MediaSecret, cfg.MediaURLTTL, "/media"),
		Limiter:        limiterStore,
		TrustedProxies: cfg.TrustedProxies,
		CORSOrigin:     cfg.CORSOrigin,
		SecureCookie:   cfg.TLSCert != "",
		Log:            log,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		var err error
		if cfg.TLSCert != "" {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.HealthPort != "" {
		var opts []grpc.ServerOption
		if cfg.TLSCert != "" {
			creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("load TLS certs: %w", err)
			}
			opts = append(opts, grpc.Creds(creds))
		}
		var hs *health.Server
		grpcServer, hs = newHealthServer(opts...)
		go watchHealth(ctx, hs, st.ping, 15*time.Second, log.Named("health"))

		lis, err := net.Listen("tcp", ":"+cfg.HealthPort)
		if err != nil {
			return fmt.Errorf("listen health: %w", err)
		}
		go func() {
			log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return httpServer.Shutdown(sctx)
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			users: data.NewMemoryUsers(),
			chats: data.NewMemoryChats(),
			msgs:  data.NewMemoryMessages(),
			close: func(context.Context) error { return nil },
		}, nil
	}

	dbClient, err := db.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}
	// ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return &stores{
		users: data.NewUsersStore(dbClient.UsersCollection()),
		chats: data.NewChatsStore(dbClient.ChatsCollection()),
		msgs:  data.NewMessagesStore(dbClient.MessagesCollection()),
		ping:  dbClient.Ping,
		close: dbClient.Close,
	}, nil
}
