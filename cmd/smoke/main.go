package main

import (
	"context"
	"fmt"
	"log"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/client"
	"usermanager.org/internal/config"
	"usermanager.org/internal/ids"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	baseURL := cfg.ServiceURL

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	email := fmt.Sprintf("smoke-%s@example.com", ids.New())
	password := "smoke-" + ids.NewUUID()[:8]

	c := client.New(baseURL, nil)
	if _, err := c.Register(ctx, client.RegisterRequest{Email: email, Password: password}); err != nil {
		log.Fatalf("register: %v", err)
	}
	res, err := c.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if res.UserInfo.Email != email || len(res.UserInfo.Roles) != 0 {
		log.Fatalf("unexpected user info: %+v", res.UserInfo)
	}

	logs, err := c.Logs(ctx)
	if err != nil {
		log.Fatalf("logs: %v", err)
	}
	if !hasEntry(logs, email, auth.EventLogin) || !hasEntry(logs, email, auth.EventRegistered) {
		log.Fatalf("audit entries for %s missing", email)
	}

	// Admin checks run only when credentials are provided.
	if cfg.AdminEmail != "" {
		admin := client.New(baseURL, nil)
		if _, err := admin.Login(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("admin login: %v", err)
		}
		if _, err := admin.UpdateRole(ctx, email, "User"); err != nil {
			log.Fatalf("update role: %v", err)
		}
		u, err := admin.UserByEmail(ctx, email)
		if err != nil {
			log.Fatalf("lookup: %v", err)
		}
		if len(u.Roles) != 1 || u.Roles[0] != "User" {
			log.Fatalf("unexpected roles after update: %v", u.Roles)
		}
	}

	fmt.Printf("✅ usermanager smoke test passed: user=%s\n", email)
}

func hasEntry(entries []client.LogEntry, actor, description string) bool {
	for _, e := range entries {
		if e.UserName == actor && e.Description == description {
			return true
		}
	}
	return false
}
