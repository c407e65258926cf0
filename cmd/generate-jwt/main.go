package main

import (
	"flag"
	"fmt"
	"log"

	"transfer-backend/internal/config"
	"transfer-backend/internal/handlers"
	"transfer-backend/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	address := flag.String("address", "0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "wallet address the token is issued to")
	chainID := flag.Uint64("chain", 0, "chain id (default: blockchain.defaultChainId)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set; a token signed with a random secret would be useless")
	}
	if !utils.IsEvmAddress(*address) {
		log.Fatalf("invalid address %q", *address)
	}
	if *chainID == 0 {
		*chainID = cfg.Blockchain.DefaultChainID
	}
	chains := cfg.ChainRegistry()
	chain, err := chains.MustGet(*chainID)
	if err != nil {
		log.Fatal(err)
	}

	token, expiresAt, err := handlers.NewAuthHandler(cfg.Auth, chains).GenerateJWTToken(*address, chain.ChainID)
	if err != nil {
		log.Fatalf("Error generating token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  User Address: %s\n", utils.NormalizeAddress(*address))
	fmt.Printf("  Chain: %s (%d)\n", chain.Name, chain.ChainID)
	fmt.Printf("  Expires: %s\n", expiresAt)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:%d/api/transactions\n", token, cfg.Server.Port)
}
