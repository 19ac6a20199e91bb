package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"draw2story/internal/adapter/repo"
	"draw2story/internal/domain"
	"draw2story/internal/infra"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		statusFlag string
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&statusFlag, "status", string(domain.SubscriptionActive), "subscription status to assign (active, inactive, canceled, past_due)")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	status, err := domain.ParseSubscriptionStatus(statusFlag)
	if err != nil {
		exitWithError(err)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "subscription").Logger()
	users := repo.NewUserRepository(infra.NewSQLRunner(pool, logger))

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	previous := user.SubscriptionStatus
	updated, err := users.UpdateSubscriptionStatus(ctx, user.ID, status)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update subscription: %w", err))
	}

	fmt.Printf("User %s (%s) subscription %s -> %s\n", updated.ID, updated.Email, previous, updated.SubscriptionStatus)
	fmt.Printf("can_create_storybooks=%v\n", updated.HasActiveSubscription())
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
