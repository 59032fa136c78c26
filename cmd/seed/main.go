package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"companion-pipeline/internal/config"
	pg "companion-pipeline/internal/infra/db/postgres"
	"companion-pipeline/internal/infra/redis"
)

// Dev bootstrap: applies the schema, credits a test user, and prints a
// bearer token for exercising the API by hand.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "dev-user", "user id to credit")
	credits := flag.Int64("credits", 1000, "balance to set for the user")
	reset := flag.Bool("reset", false, "wipe existing job, message and ledger data first")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if *reset {
		log.Println("wiping redis and job tables...")
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("flush redis: %v", err)
		}
		_ = redisClient.Close()
		if _, err := pool.Exec(ctx, `
TRUNCATE generation_jobs, conversation_messages, credit_accounts, credit_ledger;`); err != nil {
			log.Fatalf("truncate: %v", err)
		}
	}

	log.Println("applying schema...")
	if _, err := pool.Exec(ctx, pg.Schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	if _, err := pool.Exec(ctx, `
INSERT INTO credit_accounts (user_id, balance, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET balance = $2, updated_at = now();`,
		*userID, *credits); err != nil {
		log.Fatalf("credit account: %v", err)
	}
	log.Printf("user %s credited with %d", *userID, *credits)

	secret := cfg.Server.JWTSecret
	if secret == "" {
		secret = "dev-secret"
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   *userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Printf("bearer token for %s:\n%s\n", *userID, signed)
}
