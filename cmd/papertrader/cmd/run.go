package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted session from a config file",
	Long: `Run a paper-trading session using settings from a configuration file.

The tick file drives the session: each row is a tick, optionally carrying a
scripted event (OPEN, OPEN_SLTP, CLOSE, CLOSE_ALL). Historical candles can be
preloaded from a CSV, .xz, or .zip file.

Example:
  papertrader run --config session.yaml --ticks ticks.csv --candles bars.csv.xz`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runTicksPath   string
	runCandlesPath string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVarP(&runTicksPath, "ticks", "t", "", "CSV file of ticks and events (required)")
	runCmd.Flags().StringVarP(&runCandlesPath, "candles", "c", "", "historical candle file to preload")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("ticks")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Running session with config: %s\n", runConfigPath)
	fmt.Printf("  Session: %s (%s %s)\n", cfg.Session.ID, cfg.Session.Symbol, cfg.Session.Timeframe)
	fmt.Printf("  Account: $%.2f %s\n", cfg.Account.Balance, cfg.Account.Currency)
	fmt.Println()

	session, err := buildSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.close()

	if runCandlesPath != "" {
		added, err := feed.LoadInto(ctx, session.store, session.key, runCandlesPath)
		if err != nil {
			return fmt.Errorf("load candles: %w", err)
		}
		fmt.Printf("Loaded %d candles from %s\n", added, runCandlesPath)
	}

	if err := feed.RunScript(ctx, runTicksPath, session.engine, feed.ScriptOptions{TickThenEvent: true}); err != nil {
		return fmt.Errorf("run script: %w", err)
	}

	if err := session.engine.Flush(ctx); err != nil {
		return fmt.Errorf("flush session: %w", err)
	}

	acct := session.engine.Account()
	fmt.Printf("\nSession complete!\n")
	fmt.Printf("  Balance: $%.2f\n", acct.Balance)
	fmt.Printf("  Realized P/L: $%.2f\n", acct.RealizedPnL)
	fmt.Printf("  Open positions: %d\n", len(session.engine.OpenPositions()))
	if cfg.Journal.Type == "csv" {
		fmt.Printf("\nTrades saved to: %s\n", cfg.Journal.TradesFile)
	} else {
		fmt.Printf("\nTrades saved to: %s\n", cfg.Journal.DBPath)
	}

	return nil
}

// session bundles everything one run needs, wired once from config.
type session struct {
	key    market.Key
	store  *market.Store
	engine *sim.Engine
	jrnl   journal.Journal
	snap   *snapshot.SQLite
}

func buildSession(ctx context.Context, cfg *config.Config) (*session, error) {
	tf, err := market.ParseTimeframe(cfg.Session.Timeframe)
	if err != nil {
		return nil, err
	}

	var jrnl journal.Journal
	if cfg.Journal.Type == "csv" {
		jrnl, err = journal.NewCSV(cfg.Journal.TradesFile)
	} else {
		jrnl, err = journal.NewSQLite(cfg.Journal.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}

	var snap *snapshot.SQLite
	if cfg.Snapshot.DBPath != "" {
		snap, err = snapshot.NewSQLite(cfg.Snapshot.DBPath, cfg.Session.ID)
		if err != nil {
			jrnl.Close()
			return nil, fmt.Errorf("open snapshot db: %w", err)
		}
	}

	opts := market.StoreOptions{
		MaxCandles:    cfg.Store.MaxCandles,
		GuardPercent:  cfg.Store.GuardPercent,
		GuardDisabled: cfg.Store.GuardDisabled,
	}
	if snap != nil {
		opts.Persister = snap
	}
	store := market.NewStore(opts)
	if snap != nil {
		if err := store.Load(ctx); err != nil {
			fmt.Printf("warning: could not restore series: %v\n", err)
		}
	}

	engineOpts := sim.EngineOptions{
		Store:     store,
		Account:   sim.NewAccount(cfg.Account.Balance),
		Journal:   jrnl,
		Timeframe: tf,
	}
	if snap != nil {
		engineOpts.Snapshot = snap
		if acct, ok, err := snap.LoadAccount(ctx); err == nil && ok {
			restored := acct
			engineOpts.Account = &restored
			fmt.Printf("Restored account: balance $%.2f\n", acct.Balance)
		}
	}

	engine := sim.NewEngine(engineOpts)
	if snap != nil {
		positions, err := snap.LoadPositions(ctx)
		if err != nil {
			fmt.Printf("warning: could not restore positions: %v\n", err)
		} else if len(positions) > 0 {
			if err := engine.RestorePositions(positions); err != nil {
				jrnl.Close()
				snap.Close()
				return nil, fmt.Errorf("restore positions: %w", err)
			}
			fmt.Printf("Restored %d open position(s)\n", len(positions))
		}
	}

	return &session{
		key:    market.Key{Symbol: cfg.Session.Symbol, Timeframe: tf},
		store:  store,
		engine: engine,
		jrnl:   jrnl,
		snap:   snap,
	}, nil
}

func (s *session) close() {
	if s.jrnl != nil {
		s.jrnl.Close()
	}
	if s.snap != nil {
		s.snap.Close()
	}
}
