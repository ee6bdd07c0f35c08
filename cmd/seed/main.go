// Command main runs the demo data seeder for e-Bantek.
package main

import (
	"flag"
	"log"

	"ebantek/internal/config"
	"ebantek/internal/database"
	"ebantek/internal/seed"
)

func main() {
	numRequests := flag.Int("requests", 20, "Number of demo requests to create")
	flag.Parse()

	log.Println("e-Bantek demo data seeder")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.NewSeeder(database.DB).DemoData(*numRequests); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seeding complete")
	log.Printf("Demo accounts use password %q", seed.DemoPassword)
}
