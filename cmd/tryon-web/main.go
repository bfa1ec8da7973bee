package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/gemini"
	"github.com/fpang/ai-virtual-tryon/internal/logging"
	"github.com/fpang/ai-virtual-tryon/internal/page"
	"github.com/fpang/ai-virtual-tryon/internal/pagehost"
	"github.com/fpang/ai-virtual-tryon/internal/share"
	"github.com/fpang/ai-virtual-tryon/internal/store"
	"github.com/fpang/ai-virtual-tryon/internal/workflow"
)

// CLI flags
var (
	portFlag     int
	dbFlag       string
	imgbbKeyFlag string
	snapshotFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tryon-web",
	Short: "Control surface for the AI virtual try-on workflow",
	Long: `Tryon Web starts a local server hosting the try-on workflow: upload a
model photo, pick a garment image from a connected page, and iteratively
generate try-on composites through the Gemini image backend.

Page agents attach over the /ws/page websocket. For local experiments a
page snapshot file can be loaded in-process instead.

Examples:
  tryon-web
  tryon-web --port 9090
  tryon-web --page-snapshot shop-page.json`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&dbFlag, "db", "tryon-session.db", "Path to the session database")
	rootCmd.Flags().StringVar(&imgbbKeyFlag, "imgbb-key", os.Getenv("IMGBB_API_KEY"), "imgbb API key for share uploads")
	rootCmd.Flags().StringVar(&snapshotFlag, "page-snapshot", "", "Load a page snapshot file as an in-process page context")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	st, err := store.Open(dbFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbFlag).Msg("Failed to open session database")
	}
	defer st.Close()

	b := bus.New()
	gateway := bus.NewGateway(b)

	var injector workflow.Injector = gateway
	if snapshotFlag != "" {
		data, err := os.ReadFile(snapshotFlag)
		if err != nil {
			log.Fatal().Err(err).Str("path", snapshotFlag).Msg("Failed to read page snapshot")
		}
		doc, err := page.ParseSnapshot(data)
		if err != nil {
			log.Fatal().Err(err).Str("path", snapshotFlag).Msg("Failed to parse page snapshot")
		}
		injector = pagehost.Attach(b, doc)
		log.Info().Str("path", snapshotFlag).Msg("In-process page context attached")
	}

	orch, err := workflow.New(context.Background(), workflow.Config{
		Bus:      b,
		Injector: injector,
		NewGenerator: func(apiKey string) workflow.Generator {
			return gemini.NewClient(apiKey)
		},
		Store:    st,
		Uploader: share.NewClient(imgbbKeyFlag),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct workflow orchestrator")
	}

	srv := &server{orch: orch}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/state", srv.handleState)
	mux.HandleFunc("/api/model/upload", srv.handleModelUpload)
	mux.HandleFunc("/api/model/extend", srv.handleModelExtend)
	mux.HandleFunc("/api/model/clear", srv.handleModelClear)
	mux.HandleFunc("/api/key", srv.handleSaveKey)
	mux.HandleFunc("/api/pick/toggle", srv.handlePickToggle)
	mux.HandleFunc("/api/apparel/extract", srv.handleApparelExtract)
	mux.HandleFunc("/api/apparel/change", srv.handleApparelChange)
	mux.HandleFunc("/api/apparel/back", srv.handleApparelBack)
	mux.HandleFunc("/api/tryon", srv.handleTryOn)
	mux.HandleFunc("/api/regenerate", srv.handleRegenerate)
	mux.HandleFunc("/api/startover", srv.handleStartOver)
	mux.HandleFunc("/api/preview", srv.handlePreview)
	mux.HandleFunc("/api/share", srv.handleShare)
	mux.HandleFunc("/api/export.zip", srv.handleExportZip)

	// Page agent websocket
	mux.Handle("/ws/page", gateway)

	handler := withLogging(withCORS(mux))

	addr := fmt.Sprintf(":%d", portFlag)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting control surface")
	fmt.Printf("\n  Try-On control surface: http://localhost:%d\n\n", portFlag)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
