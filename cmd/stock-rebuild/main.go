/*
main.go - Stock balance audit and rebuild tool

PURPOSE:
  Compares every item's stored balance with the sum of its movement
  history and, with -apply, rewrites drifting balances to the derived
  value. Drift only appears after writes that bypassed the ledger, such
  as balances overwritten directly by older tooling.

COMMAND-LINE FLAGS:
  -db       SQLite database path (overrides SITE_DB_PATH)
  -project  Audit every item of this project
  -item     Audit a single item
  -apply    Rewrite drifting balances (default: report only)

  Exactly one of -project and -item is required.

LOCKING:
  Rebuilds take the same project lock as the server. Set REDIS_ADDR when
  the server runs with Redis locks, so both processes share them.

EXAMPLES:
  ./stock-rebuild -db ./obra.db -project 1
  ./stock-rebuild -db ./obra.db -item 12 -apply
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/stock"
	"github.com/warp/site-ledger/store/sqlite"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "stock-rebuild: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("stock-rebuild", flag.ContinueOnError)
	fs.SetOutput(out)
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path")
	projectID := fs.Int64("project", 0, "audit every item of this project")
	itemID := fs.Int64("item", 0, "audit a single item")
	apply := fs.Bool("apply", false, "rewrite drifting balances")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*projectID == 0) == (*itemID == 0) {
		return errors.New("exactly one of -project or -item is required")
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}

	storeCfg := sqlite.DefaultConfig(*dbPath)
	storeCfg.Driver = cfg.DBDriver
	storeCfg.BusyTimeout = cfg.BusyTimeout
	store, err := sqlite.NewWithConfig(storeCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	var locker generic.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := lock.Dial(dialCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, logger)
	}
	ledger := stock.NewLedger(store, lock.WithTTL(locker, cfg.LockTTL), logger)

	var reports []stock.AuditReport
	if *itemID != 0 {
		r, err := ledger.Audit(ctx, generic.ItemID(*itemID))
		if err != nil {
			return err
		}
		reports = []stock.AuditReport{r}
	} else {
		if reports, err = ledger.AuditProject(ctx, generic.ProjectID(*projectID)); err != nil {
			return err
		}
	}

	rebuilt := 0
	if *apply {
		for _, r := range reports {
			if r.Consistent() {
				continue
			}
			if _, err := ledger.Rebuild(ctx, r.Item.ID); err != nil {
				return err
			}
			rebuilt++
			logger.WithFields(logrus.Fields{
				"item_id": r.Item.ID,
				"stored":  r.Stored.String(),
				"derived": r.Derived.String(),
			}).Info("balance rebuilt")
		}
	}

	fmt.Fprintln(out, render(reports))
	fmt.Fprintln(out, summary(reports, *apply, rebuilt))
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func render(reports []stock.AuditReport) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "ITEM", "STORED", "DERIVED", "DRIFT", "MOVEMENTS", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, r := range reports {
		status := "ok"
		if !r.Consistent() {
			status = "DRIFT"
		}
		t.Row(
			strconv.FormatInt(int64(r.Item.ID), 10),
			r.Item.Name,
			r.Stored.String(),
			r.Derived.String(),
			r.Drift().String(),
			strconv.Itoa(r.Movements),
			status,
		)
	}
	return t.String()
}

func summary(reports []stock.AuditReport, apply bool, rebuilt int) string {
	drifting := 0
	for _, r := range reports {
		if !r.Consistent() {
			drifting++
		}
	}
	s := fmt.Sprintf("%d items audited, %d drifting", len(reports), drifting)
	if apply {
		s += fmt.Sprintf(", %d rebuilt", rebuilt)
	} else if drifting > 0 {
		s += " (run with -apply to rebuild)"
	}
	return s
}
