// Command eventactord hosts event-sourced counter entities behind an HTTP
// API, a firehose of successfully persisted events, and (when configured as
// a journal backend for other processes) a gRPC journal service backed by
// its own local store.
//
// Grounded on main.go's load-config -> build-logger -> construct-subsystems
// -> serve wiring shape, trimmed to the subsystems this module has.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"eventactor/runtime/actor"
	configpkg "eventactor/runtime/internal/config"
	"eventactor/runtime/internal/logging"
	"eventactor/runtime/journal/file"
	"eventactor/runtime/journal/memory"
	"eventactor/runtime/journal/rpc"

	"eventactor/runtime/firehose"
)

func main() {
	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logging.ReplaceGlobals(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, closer, isLocal, err := buildJournalBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize journal backend", logging.Error(err))
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("journal close failed", logging.Error(err))
		}
	}()

	var journal actor.Journal = backend
	var hub *firehose.Hub
	if cfg.FirehoseEnabled {
		hub = firehose.NewHub(firehose.Config{
			AllowedOrigins: cfg.AllowedOrigins,
			PingInterval:   cfg.PingInterval,
			MaxClients:     cfg.MaxClients,
			Logger:         logger.With(logging.String("component", "firehose")),
		})
		journal = firehose.NewTap(journal, hub)
		logger.Info("firehose enabled")
	} else {
		logger.Info("firehose disabled")
	}

	if isLocal {
		grpcLogger := logger.With(logging.String("component", "journal_rpc_server"))
		if err := serveJournalRPC(ctx, cfg, backend, grpcLogger); err != nil {
			logger.Fatal("failed to start journal rpc server", logging.Error(err))
		}
	}

	host := NewHost(ctx, journal, backend, actor.Config{MaxBatchSize: cfg.MaxBatchSize}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(host))
	mux.HandleFunc("/v1/counters/", routeCounterRequests(host))
	if hub != nil {
		mux.Handle("/firehose", hub)
	}

	server := &http.Server{
		Addr:    cfg.FirehoseAddress,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", logging.Error(err))
		}
	}()

	logger.Info("eventactord listening", logging.String("address", cfg.FirehoseAddress), logging.String("journal_backend", cfg.JournalBackend))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server terminated", logging.Error(err))
	}
}

// journalCloser is implemented by the durable backends that hold open file
// handles; memory.Journal and rpc.Client have nothing to flush.
type journalCloser interface {
	Close() error
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

type journalStore interface {
	actor.Journal
	actor.SnapshotStore
}

// buildJournalBackend constructs the actor.Journal/actor.SnapshotStore pair
// selected by cfg.JournalBackend. isLocal reports whether the backend is an
// in-process store (memory or file) that this instance can also expose to
// other processes over gRPC, as opposed to an rpc.Client delegating to a
// remote one.
func buildJournalBackend(cfg *configpkg.Config, logger *logging.Logger) (store journalStore, closer journalCloser, isLocal bool, err error) {
	switch cfg.JournalBackend {
	case configpkg.JournalBackendMemory:
		return memory.New(), noopCloser{}, true, nil
	case configpkg.JournalBackendFile:
		j, err := file.Open(cfg.JournalDir, logger.With(logging.String("component", "journal_file")))
		if err != nil {
			return nil, nil, false, err
		}
		if cfg.RetentionMaxEntities > 0 {
			cleaner := file.NewCleaner(cfg.JournalDir, file.RetentionPolicy{MaxEntities: cfg.RetentionMaxEntities}, logger)
			go cleaner.Run(context.Background(), cfg.RetentionSweepInterval)
		}
		return j, j, true, nil
	case configpkg.JournalBackendRPC:
		conn, err := grpc.NewClient(cfg.JournalRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUnaryInterceptor(rpc.UnaryClientAuth(cfg.SharedSecret)),
		)
		if err != nil {
			return nil, nil, false, fmt.Errorf("dial journal rpc server: %w", err)
		}
		return rpc.NewClient(conn), conn, false, nil
	default:
		return nil, nil, false, fmt.Errorf("unknown journal backend %q", cfg.JournalBackend)
	}
}

// serveJournalRPC exposes localStore over gRPC on cfg.GRPCAddress so other
// eventactord instances can point EVENTACTOR_JOURNAL_BACKEND=rpc at this
// process instead of running their own durable store.
func serveJournalRPC(ctx context.Context, cfg *configpkg.Config, localStore journalStore, logger *logging.Logger) error {
	listener, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryServerAuth(cfg.SharedSecret)))
	rpc.RegisterJournalServer(srv, rpc.NewServer(localStore))

	go func() {
		logger.Info("journal rpc server listening", logging.String("address", cfg.GRPCAddress))
		if err := srv.Serve(listener); err != nil {
			logger.Warn("journal rpc server stopped", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return nil
}

func routeCounterRequests(host *Host) http.HandlerFunc {
	incrementHandler := host.handleCounterChange("increment")
	decrementHandler := host.handleCounterChange("decrement")
	getHandler := host.handleCounterGet()
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && pathHasSuffix(r.URL.Path, "/increment"):
			incrementHandler(w, r)
		case r.Method == http.MethodPost && pathHasSuffix(r.URL.Path, "/decrement"):
			decrementHandler(w, r)
		case r.Method == http.MethodGet:
			getHandler(w, r)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

func pathHasSuffix(path, suffix string) bool {
	if len(path) < len(suffix) {
		return false
	}
	return path[len(path)-len(suffix):] == suffix
}
