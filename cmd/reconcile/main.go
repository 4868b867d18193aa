package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/app"
	"github.com/qs3c/mlm_go_server/internal/database"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
)

var (
	dryRun      = flag.Bool("dry-run", true, "Dry run mode, only report what would be reconciled")
	batch       = flag.Int("batch", 100, "Max unprocessed payments to allocate in one run")
	expire      = flag.Bool("expire-payments", true, "Expire waiting payments past their deadline")
	downgrade   = flag.Bool("downgrade", true, "Downgrade members whose subscription has ended")
	allocations = flag.Bool("allocations", true, "Allocate commissions for confirmed payments not yet processed")
	replay      = flag.Bool("replay-dead", false, "Move abandoned allocation retries back onto the worker queue")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()

	log.Println("Starting reconcile task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 连接数据库和 Redis
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	services := app.NewServices(cfg, db, rdb, zlog)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 1. 过期未支付订单
	if *expire {
		if *dryRun {
			n, err := services.Payments.CountStale()
			if err != nil {
				log.Fatalf("Failed to count stale payments: %v", err)
			}
			log.Printf("[DRY RUN] Would expire %d waiting payments", n)
		} else {
			n, err := services.Payments.ExpireStale(ctx)
			if err != nil {
				log.Fatalf("Failed to expire payments: %v", err)
			}
			log.Printf("Expired %d waiting payments", n)
		}
	}

	// 2. 订阅到期降级
	if *downgrade {
		if *dryRun {
			log.Println("[DRY RUN] Skipping subscription downgrade")
		} else {
			n, err := services.Members.DowngradeExpired(ctx)
			if err != nil {
				log.Fatalf("Failed to downgrade members: %v", err)
			}
			log.Printf("Downgraded %d members", n)
		}
	}

	// 3. 补偿佣金分配
	if *allocations {
		if *dryRun {
			payments, err := services.Commissions.ListUnprocessed(*batch)
			if err != nil {
				log.Fatalf("Failed to list unprocessed payments: %v", err)
			}
			for _, p := range payments {
				log.Printf("[DRY RUN] Would allocate payment %s (user %d, tier %s, amount %s)",
					p.ID, p.UserID, p.Tier, p.Amount.StringFixed(2))
			}
			log.Printf("[DRY RUN] %d payments awaiting allocation", len(payments))
		} else {
			n, err := services.Commissions.SweepUnprocessed(ctx, *batch)
			if err != nil {
				log.Fatalf("Failed to sweep allocations: %v", err)
			}
			log.Printf("Allocated commissions for %d payments", n)
		}
	}

	// 4. 死信重放
	if *replay {
		if *dryRun {
			dead, err := services.Queue.DeadLetters(ctx, int64(*batch))
			if err != nil {
				log.Fatalf("Failed to list dead letters: %v", err)
			}
			for _, m := range dead {
				log.Printf("[DRY RUN] Would replay payment %s (attempt %d, last error: %s)", m.PaymentID, m.Attempt, m.LastError)
			}
		} else {
			n, err := services.Queue.Replay(ctx)
			if err != nil {
				log.Fatalf("Failed to replay dead letters: %v", err)
			}
			log.Printf("Replayed %d abandoned allocations", n)
		}
	}

	log.Println("Reconcile finished")
	if *dryRun {
		log.Println("This was a dry run. Run with -dry-run=false to apply changes.")
	}
}
