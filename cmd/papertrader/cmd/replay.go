package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a historical candle series with a moving cursor",
	Long: `Load a candle file and play it back through the replay cursor.

While replay is active the store only exposes candles at or before the
cursor, and live ticks are ignored. Playback speed scales the wall-clock
step from the config (default 100ms per candle).

Example:
  papertrader replay --config session.yaml --candles bars.csv --speed 4`,
	RunE: runReplay,
}

var (
	replayConfigPath  string
	replayCandlesPath string
	replaySpeed       float64
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "f", "", "path to config file (required)")
	replayCmd.Flags().StringVarP(&replayCandlesPath, "candles", "c", "", "historical candle file (required)")
	replayCmd.Flags().Float64VarP(&replaySpeed, "speed", "s", 0, "playback speed multiplier (overrides config)")
	replayCmd.MarkFlagRequired("config")
	replayCmd.MarkFlagRequired("candles")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadFromFile(replayConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tf, err := market.ParseTimeframe(cfg.Session.Timeframe)
	if err != nil {
		return err
	}
	key := market.Key{Symbol: cfg.Session.Symbol, Timeframe: tf}

	store := market.NewStore(market.StoreOptions{
		MaxCandles:    cfg.Store.MaxCandles,
		GuardPercent:  cfg.Store.GuardPercent,
		GuardDisabled: cfg.Store.GuardDisabled,
	})

	added, err := feed.LoadInto(ctx, store, key, replayCandlesPath)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("no candles in %s", replayCandlesPath)
	}
	fmt.Printf("Loaded %d candles for %s\n", added, key.String())

	step, err := cfg.Replay.ParseStep()
	if err != nil {
		return err
	}
	speed := cfg.Replay.Speed
	if replaySpeed > 0 {
		speed = replaySpeed
	}
	if speed <= 0 {
		speed = 1.0
	}

	ctrl := replay.NewController(replay.Options{Store: store, Step: step})
	ctrl.Enter(key)

	from, to, _ := store.TimeRange(key)
	fmt.Printf("Playing %s -> %s at %.1fx\n", from.Format(time.RFC3339), to.Format(time.RFC3339), speed)

	ctrl.Play(ctx, speed)
	for ctrl.State().Playing {
		time.Sleep(50 * time.Millisecond)
		if cursor, ok := ctrl.Cursor(); ok {
			fmt.Printf("\r  cursor: %s  visible: %d", cursor.Format(time.RFC3339), len(store.Read(key)))
		}
	}
	fmt.Println()

	ctrl.Exit()
	fmt.Println("Replay complete.")
	return nil
}
