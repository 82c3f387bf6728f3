package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CynicPixel/bhumi-ai/internal/config"
	"github.com/CynicPixel/bhumi-ai/internal/enhance"
	"github.com/CynicPixel/bhumi-ai/internal/extract"
	"github.com/CynicPixel/bhumi-ai/internal/httpserver"
	"github.com/CynicPixel/bhumi-ai/internal/orchestrator"
	"github.com/CynicPixel/bhumi-ai/internal/session"
	"github.com/CynicPixel/bhumi-ai/internal/speech"
	"github.com/CynicPixel/bhumi-ai/internal/vision"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	monitor := orchestrator.NewMonitor(cfg.OrchestratorURL)
	monitor.Subscribe(func(st orchestrator.State) {
		if st.Connected {
			log.Printf("orchestrator reachable at %s", cfg.OrchestratorURL)
		} else {
			log.Printf("orchestrator unreachable: %s", st.Cause)
		}
	})
	monitor.Start(15 * time.Second)
	defer monitor.Stop()

	orch := orchestrator.NewClient(cfg.OrchestratorURL, monitor)

	extractor := extract.NewExtractor(extract.NewRemoteSource(cfg.ExtractURL))
	describer := vision.NewClient(cfg.VisionURL, cfg.VisionAPIKey)
	enhancer := enhance.NewEnhancer(extractor, describer, cfg.MaxPDFPages)

	recognizer := speech.NewLiveRecognizer(cfg.SpeechWSURL, cfg.SpeechAPIKey)
	batch := speech.NewBatchClient(cfg.TranscribeURL, cfg.SpeechAPIKey)

	sess := session.NewSession(recognizer, batch, enhancer, orch, cfg.UserID, nil)

	e := httpserver.New(httpserver.NewHandlers(sess, sess, orch, monitor, batch))

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("gateway listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
