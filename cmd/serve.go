package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/auth"
	"github.com/theapemachine/a2a-go/pkg/grpcsurface"
	"github.com/theapemachine/a2a-go/pkg/push"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/server"
	"github.com/theapemachine/a2a-go/pkg/storage"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
	"github.com/theapemachine/a2a-go/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the A2A task execution core",
	Long:  longServe,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires Storage, Scheduler, the Task Manager, and the JSON-RPC/SSE
// and (optionally) gRPC surfaces from spec §6's environment configuration,
// then serves both until an interrupt/SIGTERM asks for a graceful shutdown.
func runServe() error {
	ctx := context.Background()

	store, closeStore, err := buildStorage(ctx)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	sched, closeSched, err := buildScheduler()
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	defer closeSched()

	tm := taskmanager.New(store, sched, echoHandler).WithPush(push.NewDispatcher(store))

	if endpoint := viper.GetString("S3_ENDPOINT"); endpoint != "" {
		offloader, err := storage.NewFileOffloader(ctx,
			endpoint,
			viper.GetString("S3_ACCESS_KEY"),
			viper.GetString("S3_SECRET_KEY"),
			getenvDefault("S3_BUCKET", "a2a-files"),
			viper.GetBool("S3_USE_SSL"),
		)
		if err != nil {
			return fmt.Errorf("build file offloader: %w", err)
		}
		tm.WithOffloader(offloader)
	}

	card := buildCard()
	tm.PushNotificationsEnabled = card.Capabilities.PushNotifications

	mw, err := buildAuth()
	if err != nil {
		return fmt.Errorf("build auth middleware: %w", err)
	}

	srv := server.New(tm, card)
	srv.Auth = mw
	srv.StaticDir = getenvDefault("STATIC_DIR", "")

	host := getenvDefault("HOST", "0.0.0.0")
	port := getenvDefault("PORT", "3210")
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", host, port),
		Handler: srv.Handler(),
	}

	go func() {
		log.Info("serving A2A task execution core", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", "error", err)
		}
	}()

	var grpcServer *grpc.Server
	if viper.GetBool("GRPC_ENABLED") {
		grpcServer, err = startGRPC(tm, mw)
		if err != nil {
			return fmt.Errorf("start grpc surface: %w", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	return nil
}

// echoHandler is the default worker.Handler for a bare core with no
// embedding application: it reflects the last user message back as the
// completed artifact, useful for manifest smoke tests and local demos.
func echoHandler(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
	if len(history) == 0 {
		return "", nil
	}
	return history[len(history)-1].Content, nil
}

func buildStorage(ctx context.Context) (storage.Storage, func(), error) {
	switch viper.GetString("STORAGE_TYPE") {
	case "postgres":
		dsn := viper.GetString("DATABASE_URL")
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		did := getenvDefault("AGENT_DID", "did:key:local")
		return storage.NewPostgresStorage(db, did), func() { _ = db.Close() }, nil
	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}

func buildScheduler() (scheduler.Scheduler, func(), error) {
	switch viper.GetString("SCHEDULER_TYPE") {
	case "redis":
		opts, err := redis.ParseURL(viper.GetString("REDIS_URL"))
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		return scheduler.NewRedisScheduler(rdb), func() { _ = rdb.Close() }, nil
	default:
		return scheduler.NewMemoryScheduler(), func() {}, nil
	}
}

// buildAuth wires a self-contained LocalValidator when AUTH_ENABLED is set.
// AUTH_PROVIDER and the OAuth2/OIDC admin endpoints it would otherwise
// point at are deliberately out of scope for this core (spec §6): this is
// the in-process fallback used for tests and single-agent demos.
func buildAuth() (*auth.Middleware, error) {
	if !viper.GetBool("AUTH_ENABLED") {
		return nil, nil
	}
	signingKey := getenvDefault("AUTH_SIGNING_KEY", "")
	if signingKey == "" {
		return nil, fmt.Errorf("AUTH_ENABLED requires AUTH_SIGNING_KEY")
	}
	validator := auth.NewLocalValidator([]byte(signingKey))
	return auth.NewMiddleware(validator, nil, 1024), nil
}

func buildCard() a2a.AgentCard {
	name := getenvDefault("AGENT_NAME", "a2a-go agent")
	author := getenvDefault("AGENT_AUTHOR", "a2a-go")
	did := getenvDefault("AGENT_DID", fmt.Sprintf("did:bindu:%s:%s:0", author, name))
	host := getenvDefault("HOST", "0.0.0.0")
	port := getenvDefault("PORT", "3210")

	return a2a.AgentCard{
		Name:    name,
		Author:  author,
		DID:     did,
		URL:     fmt.Sprintf("http://%s:%s", host, port),
		Version: getenvDefault("AGENT_VERSION", "0.1.0"),
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []a2a.AgentSkill{
			{ID: "echo", Name: "Echo"},
		},
	}
}

func startGRPC(tm *taskmanager.TaskManager, mw *auth.Middleware) (*grpc.Server, error) {
	grpcHost := getenvDefault("GRPC_HOST", "0.0.0.0")
	grpcPort := getenvDefault("GRPC_PORT", "9090")
	lis, err := net.Listen("tcp", net.JoinHostPort(grpcHost, grpcPort))
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	gs := grpcsurface.NewServer(tm, mw)
	go func() {
		log.Info("serving A2A grpc surface", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server error", "error", err)
		}
	}()

	return gs, nil
}

var longServe = `
Serve the A2A task execution core over JSON-RPC + SSE (and, when
GRPC_ENABLED=true, the wire-equivalent gRPC surface) until interrupted.
`
