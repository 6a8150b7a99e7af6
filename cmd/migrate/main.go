package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"usermanager.org/internal/migrate"
	"usermanager.org/internal/obs"
	"usermanager.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("USERMGR_PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or USERMGR_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|pending]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrate.Source{FS: pg.Migrations, Dir: "migrations"},
		migrate.WithSeeds(migrate.Source{FS: pg.Seeds, Dir: "seeds"}),
		migrate.WithLogger(obs.NewLogger(os.Stderr, os.Getenv("USERMGR_LOG_LEVEL"))),
	)

	var lines []string
	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		lines, err = mgr.Status(ctx)
	case "pending":
		lines, err = mgr.Pending(ctx)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, item := range lines {
		fmt.Println(item)
	}
}
