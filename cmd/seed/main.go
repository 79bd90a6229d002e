package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Clark-Hu/moviestore/internal/config"
	"github.com/Clark-Hu/moviestore/internal/logger"
	"github.com/Clark-Hu/moviestore/internal/migrate"
	"github.com/Clark-Hu/moviestore/internal/repository"
	"github.com/Clark-Hu/moviestore/internal/store"
)

//go:embed demo.json
var demoData []byte

func main() {
	var (
		data       = flag.String("data", "", "path to a seed data file (defaults to the bundled demo catalog)")
		skipOrders = flag.Bool("skip-orders", false, "load movies only")
		migrateUp  = flag.Bool("migrate", false, "apply migrations before seeding")
	)
	flag.Parse()

	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	raw := demoData
	if *data != "" {
		raw, err = os.ReadFile(*data)
		if err != nil {
			logg.Error(ctx, "read seed data", err)
			os.Exit(1)
		}
	}
	fx, err := parseFixture(raw)
	if err != nil {
		logg.Error(ctx, "parse seed data", err)
		os.Exit(1)
	}
	if *skipOrders {
		fx.Orders = nil
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	st, err := store.New(dbCtx, cfg.DBURL, store.ToolOptions(cfg, logg))
	if err != nil {
		logg.Error(ctx, "connect database", err)
		os.Exit(1)
	}
	defer st.Close()

	if *migrateUp {
		if err := migrate.Up(ctx, st.Pool()); err != nil {
			logg.Error(ctx, "apply migrations", err)
			os.Exit(1)
		}
	}

	res, err := load(ctx, repository.New(st), fx, logg)
	if err != nil {
		logg.Error(ctx, "seed failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, fmt.Sprintf("seeded %d new movies, %d updated, %d orders", res.Created, res.Updated, res.Orders))
}
