package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/handlers"

	"github.com/joho/godotenv"
	"github.com/pquerna/otp/totp"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	password := flag.String("password", "", "print a bcrypt hash for admin.password_hash")
	newSecret := flag.Bool("new-totp", false, "generate a fresh authenticator secret")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *password != "" {
		hash, err := handlers.HashAdminPassword(*password)
		if err != nil {
			log.Fatalf("Error hashing password: %v", err)
		}
		fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
	}

	if *newSecret {
		key, err := handlers.GenerateTOTPKey(cfg.Admin.Username)
		if err != nil {
			log.Fatalf("Error generating TOTP secret: %v", err)
		}
		fmt.Printf("ADMIN_TOTP_SECRET=%s\n", key.Secret())
		fmt.Printf("Authenticator URL: %s\n", key.URL())
		return
	}

	if cfg.Admin.TOTPSecret == "" {
		if *password == "" {
			log.Fatal("ADMIN_TOTP_SECRET is not set; run with -new-totp to create one")
		}
		return
	}
	code, err := totp.GenerateCode(cfg.Admin.TOTPSecret, time.Now())
	if err != nil {
		log.Fatalf("Error generating TOTP code: %v", err)
	}
	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~%d seconds\n", 30-time.Now().Unix()%30)
}
