// cmd/tools/create-officer/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/database"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/officer"
)

func main() {
	email := flag.String("email", "", "Officer email address (login id)")
	name := flag.String("name", "", "Display name")
	role := flag.String("role", "", "Officer role, e.g. JuniorEngineer, ExecutiveEngineer, Clerk")
	mobile := flag.String("mobile", "", "Mobile number")
	password := flag.String("password", "", "Initial password; falls back to OFFICER_PASSWORD")
	flag.Parse()

	req, err := buildRequest(*email, *name, *role, *mobile, *password, os.Getenv("OFFICER_PASSWORD"))
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

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	log := logger.NewZapAdapter(logger.New("warn", "console"))
	svc := officer.NewService(officer.NewRepository(pg.DB), log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o, err := svc.Create(ctx, req)
	if err != nil {
		fmt.Printf("Error creating officer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created officer %s (%s, %s)\n", o.ID, o.Email, o.Role)
}

func buildRequest(email, name, role, mobile, password, envPassword string) (officer.CreateRequest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return officer.CreateRequest{}, fmt.Errorf("-email must be a valid address")
	}
	if strings.TrimSpace(role) == "" {
		return officer.CreateRequest{}, fmt.Errorf("-role is required")
	}
	if password == "" {
		password = envPassword
	}
	if password == "" {
		return officer.CreateRequest{}, fmt.Errorf("-password or OFFICER_PASSWORD is required")
	}
	if strings.TrimSpace(name) == "" {
		name = email
	}
	return officer.CreateRequest{
		Email:    email,
		Name:     strings.TrimSpace(name),
		Role:     strings.TrimSpace(role),
		Mobile:   strings.TrimSpace(mobile),
		Password: password,
	}, nil
}
