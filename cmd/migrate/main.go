package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"efiling.org/internal/migrate"
	"efiling.org/internal/store/sqlstore"
)

func main() {
	log.SetFlags(0)
	var (
		dsn       = flag.String("database", os.Getenv("EFILE_DATABASE_URL"), "Database URL (postgres://... or a sqlite path)")
		seedsPath = flag.String("seeds", "", "Directory of SQL seed files")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [-database URL] [-seeds DIR] up|down|seed|status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := sqlstore.Open(ctx, *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := st.Migrator(opts...)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		} else if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		if *seedsPath == "" {
			log.Fatal("seed needs -seeds")
		}
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
