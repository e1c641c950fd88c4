package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/obra-ledger/obra-ledger/internal/app"
	"github.com/obra-ledger/obra-ledger/internal/closures"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/platform/db"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

const sessionTTL = 7 * 24 * time.Hour

type seedUser struct {
	username string
	fullName string
	email    string
	role     int
}

var users = []seedUser{
	{"director", "Dirección General", "director@obra.local", 1},
	{"admin", "Administración", "admin@obra.local", 2},
	{"residente", "Residente de Obra", "residente@obra.local", 3},
	{"compras", "Compras", "compras@obra.local", 3},
}

var projects = []struct {
	name   string
	client string
}{
	{"Torre Norte", "Inmobiliaria del Valle"},
	{"Bodega Industrial 7", "Logística Bajío"},
	{"Remodelación Oficinas", "Grupo Sierra"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	if err := db.Migrate(cfg.PGDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding users...")
	ids, err := seedUsers(ctx, pool)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	fmt.Println("→ Seeding projects...")
	if err := seedProjects(ctx, pool); err != nil {
		log.Fatalf("seed projects: %v", err)
	}
	fmt.Println("→ Generating periods...")
	if err := seedPeriods(ctx, cfg, pool); err != nil {
		log.Fatalf("seed periods: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()
	fmt.Println("→ Issuing development sessions...")
	if err := seedSessions(ctx, cfg, redisClient, ids); err != nil {
		log.Fatalf("seed sessions: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) (map[string]int64, error) {
	ids := make(map[string]int64, len(users))
	for _, u := range users {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO users (username, full_name, email, role_level)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (username) DO UPDATE SET full_name = EXCLUDED.full_name
			RETURNING id`, u.username, u.fullName, u.email, u.role).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids[u.username] = id
	}
	return ids, nil
}

func seedProjects(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range projects {
		_, err := pool.Exec(ctx, `
			INSERT INTO projects (name, client_name)
			SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM projects WHERE name = $1)`, p.name, p.client)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedPeriods(ctx context.Context, cfg *app.Config, pool *pgxpool.Pool) error {
	service := periods.NewService(periods.NewRepository(pool), closures.NewRepository(pool), nil)
	service.WithNow(cfg.Clock())
	year := service.Today().Year()
	for _, y := range []int{year, year + 1} {
		created, err := service.GenerateYear(ctx, y)
		if errors.Is(err, periods.ErrDuplicateYear) {
			fmt.Printf("  periods for %d already exist\n", y)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("  created %d periods for %d\n", len(created), y)
	}
	return nil
}

func seedSessions(ctx context.Context, cfg *app.Config, client *redis.Client, ids map[string]int64) error {
	for _, u := range users {
		token := uuid.NewString()
		key := shared.SessionKey(cfg.SessionPrefix, token)
		if err := client.Set(ctx, key, ids[u.username], sessionTTL).Err(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "  %-10s Bearer %s\n", u.username, token)
	}
	return nil
}
