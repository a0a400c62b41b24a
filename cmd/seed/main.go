// Command seed fills the shipping address store with demo address books so
// the checkout shipping step can be exercised locally.
//
// Run: go run ./cmd/seed -users 50
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/utafrali/storefront-shipping/internal/config"
	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/repository/postgres"
	"github.com/utafrali/storefront-shipping/migrations"
	"github.com/utafrali/storefront-shipping/pkg/database"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// --------------------------------------------------------------------------
// Deterministic ids
// --------------------------------------------------------------------------

// deterministicUUID derives a stable UUID-shaped id from a namespace and an
// index so re-runs produce the same users and addresses.
func deterministicUUID(namespace string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", namespace, index)))
	h[6] = (h[6] & 0x0f) | 0x40
	h[8] = (h[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}

// --------------------------------------------------------------------------
// Demo data
// --------------------------------------------------------------------------

type place struct {
	Area      string
	City      string
	Latitude  float64
	Longitude float64
}

var places = []place{
	{"Navrangpura", "Ahmedabad", 23.0365, 72.5611},
	{"Satellite", "Ahmedabad", 23.0300, 72.5176},
	{"Bandra West", "Mumbai", 19.0596, 72.8295},
	{"Koramangala", "Bengaluru", 12.9352, 77.6245},
	{"Connaught Place", "New Delhi", 28.6315, 77.2167},
	{"Salt Lake", "Kolkata", 22.5867, 88.4171},
	{"Anna Nagar", "Chennai", 13.0850, 80.2101},
	{"Banjara Hills", "Hyderabad", 17.4156, 78.4347},
}

var streets = []string{"MG Road", "Park Street", "Station Road", "Ring Road", "Lake View", "Temple Street"}

func demoAddress(rng *rand.Rand, userID string, index int) *domain.Address {
	p := places[rng.Intn(len(places))]
	return &domain.Address{
		ID:     deterministicUUID("address:"+userID, index),
		UserID: userID,
		Text: fmt.Sprintf("%d, %s, %s, %s",
			rng.Intn(400)+1, streets[rng.Intn(len(streets))], p.Area, p.City),
		Phone: fmt.Sprintf("9%09d", rng.Intn(1_000_000_000)),
		// Jitter within roughly a kilometre of the area centre.
		Coordinate: domain.Coordinate{
			Latitude:  p.Latitude + (rng.Float64()-0.5)*0.02,
			Longitude: p.Longitude + (rng.Float64()-0.5)*0.02,
		},
		CreatedAt: time.Now().UTC().Add(-time.Duration(index) * time.Hour),
	}
}

// --------------------------------------------------------------------------
// Main
// --------------------------------------------------------------------------

func main() {
	users := flag.Int("users", 20, "number of demo users")
	perUser := flag.Int("per-user", 3, "addresses per user")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	log := logger.New("shipping-seed", "info")
	if err := run(log, *users, *perUser, *seed); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger, users, perUser int, seed int64) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := postgres.NewAddressRepository(pool)
	rng := rand.New(rand.NewSource(seed))
	start := time.Now()
	created, skipped := 0, 0

	for u := 0; u < users; u++ {
		userID := deterministicUUID("user", u)
		existing, err := repo.ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list addresses of %s: %w", userID, err)
		}
		if len(existing) >= perUser {
			skipped++
			continue
		}

		for i := len(existing); i < perUser; i++ {
			addr := demoAddress(rng, userID, i)
			if err := addr.Validate(); err != nil {
				return fmt.Errorf("demo address %s: %w", addr.ID, err)
			}
			if err := repo.Create(ctx, addr); err != nil {
				return fmt.Errorf("create address %s: %w", addr.ID, err)
			}
			created++
		}
	}

	log.Info("seed complete",
		slog.Int("users", users),
		slog.Int("addresses_created", created),
		slog.Int("users_skipped", skipped),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
