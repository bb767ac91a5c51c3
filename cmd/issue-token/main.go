package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-alert-automation/internal/api"
	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/logging"
	"github.com/mr1hm/go-alert-automation/internal/models"
)

// issue-token signs a bearer token for the operator API with JWT_SECRET.
func main() {
	userID := flag.Int64("user", 0, "recipient id the token acts as")
	role := flag.String("role", string(models.RoleAdmin), "user, responder or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *userID <= 0 {
		logging.Fatalf("-user must be a positive id")
	}
	r := models.Role(*role)
	switch r {
	case models.RoleUser, models.RoleResponder, models.RoleAdmin:
	default:
		logging.Fatalf("unknown role %q", *role)
	}
	if *ttl <= 0 {
		logging.Fatalf("-ttl must be positive")
	}

	token, err := api.NewToken([]byte(cfg.Auth.JWTSecret), *userID, r, *ttl)
	if err != nil {
		logging.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
