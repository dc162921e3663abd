// identity-migrate applies the schema migrations and optionally seeds development users.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/config"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/db"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/db/migrate"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/internal/store/postgres"
	"github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity/password"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	seed := flag.Bool("seed", false, "Insert development users after migrating up")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	if !*seed || *direction != "up" {
		return
	}
	if cfg.Env == identity.EnvProduction {
		fmt.Fprintln(os.Stderr, "seed: refusing to seed development users in production")
		os.Exit(1)
	}
	if err := seedUsers(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func seedUsers(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}

	added, err := postgres.Seed(ctx, pool, hasher, postgres.DefaultSeedUsers)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d users\n", added)
	return nil
}
