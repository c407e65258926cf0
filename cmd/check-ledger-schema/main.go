package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"transfer-backend/internal/config"
	"transfer-backend/internal/db"
	"transfer-backend/internal/models"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// address and hash columns and the width they must hold
var expectedColumns = map[string]map[string]int64{
	models.CollectionTransactions: {
		"user_address":     42,
		"transaction_hash": 66,
		"from_address":     42,
		"to_address":       42,
	},
	models.CollectionRecipients: {
		"user_address":      42,
		"recipient_address": 42,
	},
}

var expectedUniqueIndexes = map[string]string{
	"idx_transactions_user_hash":    models.CollectionTransactions,
	"idx_recipients_user_recipient": models.CollectionRecipients,
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// plain connection: checking must not migrate
	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err == nil {
		fmt.Printf("🔍 Checking ledger schema in %s\n", dbName)
	}

	problems := 0
	problems += checkColumns(sqlDB)
	problems += checkIndexes(sqlDB)
	problems += checkTriggers(sqlDB)

	fmt.Println("\n📊 Summary:")
	if problems > 0 {
		fmt.Printf("  ❌ %d problem(s) found. Start the server once to migrate, or fix by hand.\n", problems)
		os.Exit(1)
	}
	fmt.Println("  ✅ Ledger schema looks good")
}

func checkColumns(sqlDB *sql.DB) int {
	fmt.Println("\n📋 Address and hash columns:")
	problems := 0
	for table, columns := range expectedColumns {
		rows, err := sqlDB.Query(`
			SELECT column_name, character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1`, table)
		if err != nil {
			log.Fatalf("Failed to query columns of %s: %v", table, err)
		}
		found := make(map[string]sql.NullInt64)
		for rows.Next() {
			var name string
			var maxLength sql.NullInt64
			if err := rows.Scan(&name, &maxLength); err != nil {
				log.Printf("Error scanning row: %v", err)
				continue
			}
			found[name] = maxLength
		}
		rows.Close()

		if len(found) == 0 {
			fmt.Printf("  ❌ table %s is missing\n", table)
			problems++
			continue
		}
		for column, want := range columns {
			got, ok := found[column]
			switch {
			case !ok:
				fmt.Printf("  ❌ %s.%s is missing\n", table, column)
				problems++
			case got.Valid && got.Int64 < want:
				fmt.Printf("  ❌ %s.%s: VARCHAR(%d), needs %d\n", table, column, got.Int64, want)
				problems++
			default:
				fmt.Printf("  ✅ %s.%s\n", table, column)
			}
		}
	}
	return problems
}

func checkIndexes(sqlDB *sql.DB) int {
	fmt.Println("\n📋 Unique indexes:")
	problems := 0
	for index, table := range expectedUniqueIndexes {
		var def string
		err := sqlDB.QueryRow(`
			SELECT indexdef FROM pg_indexes
			WHERE schemaname = 'public' AND tablename = $1 AND indexname = $2`, table, index).Scan(&def)
		switch {
		case err == sql.ErrNoRows:
			fmt.Printf("  ❌ %s on %s is missing\n", index, table)
			problems++
		case err != nil:
			log.Fatalf("Failed to query index %s: %v", index, err)
		case !strings.Contains(strings.ToUpper(def), "UNIQUE"):
			fmt.Printf("  ❌ %s exists but is not unique: %s\n", index, def)
			problems++
		default:
			fmt.Printf("  ✅ %s\n", index)
		}
	}
	return problems
}

func checkTriggers(sqlDB *sql.DB) int {
	fmt.Printf("\n📋 Change triggers (channel %s):\n", db.ChangeChannel)
	problems := 0

	var fnCount int
	if err := sqlDB.QueryRow(`SELECT count(*) FROM pg_proc WHERE proname = 'ledger_notify_change'`).Scan(&fnCount); err != nil {
		log.Fatalf("Failed to query functions: %v", err)
	}
	if fnCount == 0 {
		fmt.Println("  ❌ function ledger_notify_change is missing")
		problems++
	}

	for _, table := range []string{models.CollectionTransactions, models.CollectionRecipients} {
		trigger := table + "_notify_change"
		var events int
		if err := sqlDB.QueryRow(`
			SELECT count(*) FROM information_schema.triggers
			WHERE event_object_schema = 'public' AND event_object_table = $1 AND trigger_name = $2`,
			table, trigger).Scan(&events); err != nil {
			log.Fatalf("Failed to query triggers: %v", err)
		}
		// one row per event: INSERT, UPDATE, DELETE
		if events < 3 {
			fmt.Printf("  ❌ %s covers %d of 3 events; the postgres feed will miss changes\n", trigger, events)
			problems++
			continue
		}
		fmt.Printf("  ✅ %s\n", trigger)
	}
	return problems
}
