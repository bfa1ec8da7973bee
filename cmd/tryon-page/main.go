package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-virtual-tryon/internal/logging"
	"github.com/fpang/ai-virtual-tryon/internal/page"
	"github.com/fpang/ai-virtual-tryon/internal/pagehost"
)

// CLI flags
var (
	serverFlag   string
	snapshotFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tryon-page",
	Short: "Standalone page runtime for the try-on control surface",
	Long: `Tryon Page loads a page snapshot file and attaches it to a running
control surface over the /ws/page websocket, standing in for a browser
page hosting the picker and viewer agents.

Examples:
  tryon-page --snapshot shop-page.json
  tryon-page --snapshot shop-page.json --server ws://localhost:9090/ws/page`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&serverFlag, "server", "ws://localhost:8080/ws/page", "Control surface agent endpoint")
	rootCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Path to the page snapshot file (required)")
	rootCmd.MarkFlagRequired("snapshot")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	data, err := os.ReadFile(snapshotFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", snapshotFlag).Msg("Failed to read page snapshot")
	}
	doc, err := page.ParseSnapshot(data)
	if err != nil {
		log.Fatal().Err(err).Str("path", snapshotFlag).Msg("Failed to parse page snapshot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Detaching page runtime...")
		cancel()
	}()

	runtime, err := pagehost.Connect(ctx, serverFlag, doc)
	if err != nil {
		log.Fatal().Err(err).Str("server", serverFlag).Msg("Failed to attach to control surface")
	}
	defer runtime.Close()

	log.Info().Str("server", serverFlag).Int("images", len(doc.Images())).Msg("Page runtime attached")
	if err := runtime.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Page runtime connection lost")
	}
}
