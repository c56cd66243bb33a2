// cmd/tools/stage-override/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/audit"
	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/database"
)

func main() {
	applicationID := flag.String("application", "", "Application ID to move")
	stage := flag.String("stage", "", "Target stage, by name (e.g. CLERK_PENDING) or number")
	actor := flag.String("actor", os.Getenv("USER"), "Who is performing the override")
	comments := flag.String("comments", "", "Reason recorded in the stage history")
	flag.Parse()

	if err := refuseProduction(os.Getenv("APP_ENVIRONMENT")); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	o, err := parseOverride(*applicationID, *stage, *actor, *comments)
	if err != nil {
		fmt.Println("Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := refuseProduction(cfg.App.Environment); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	from, err := apply(ctx, application.NewRepository(pg.DB), audit.NewRepository(pg.DB), o)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Application %s moved %s -> %s\n", o.ApplicationID, from, o.To)
}
