package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/auth"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/commands"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/config"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/crypt"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/http"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/messaging"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/notify"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/presence"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/signals"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

func run(ctx context.Context, addUser, displayName, role string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if addUser != "" {
		return commands.AddUser(store, addUser, displayName, models.Role(role))
	}

	authService, err := auth.NewService(ctx, auth.Config{
		Secret:   cfg.AuthSecret,
		CacheTTL: cfg.TokenCacheTTL,
	}, store)
	if err != nil {
		return err
	}

	sealer, err := crypt.NewSealer(cfg.ContentKey)
	if err != nil {
		return err
	}

	router := rooms.NewRouter()
	registry := presence.NewRegistry(router)
	emitter := signals.NewEmitter(router)
	pusher := notify.NewPusher(notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	}, store)

	messagingService := messaging.NewService(
		ctx,
		messaging.Config{UnreadCacheTTL: cfg.UnreadCacheTTL},
		store,
		router,
		emitter,
		sealer,
		router,
		pusher,
	)

	apiServer := http.NewAPIServer(authService, messagingService, router, registry, emitter, store, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addUser := flag.String("add-user", "", "Username to create (prints the id to issue tokens for)")
	displayName := flag.String("display-name", "", "Display name for -add-user (defaults to the username)")
	role := flag.String("role", "member", "Role for -add-user: member, manager or superadmin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addUser, *displayName, *role); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
