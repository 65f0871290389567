// wstap subscribes to a running gateway and prints decoded frames.
// Usage: go run ./cmd/wstap --url ws://localhost:8080/ --feed L1
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rickgao/dtn-gateway/internal/wsclient"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/", "gateway WebSocket URL")
	feedFilter := flag.String("feed", "", "only print frames from this feed (L1 or L2)")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := wsclient.DefaultConfig()
	cfg.URL = *url
	if *feedFilter != "" {
		cfg.Feeds = []string{*feedFilter}
	}
	client := wsclient.New(cfg, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("connected", "url", *url)

	counts := make(map[string]int)
	start := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			printSummary(counts, time.Since(start))
			logger.Info("client stats", "stats", client.Stats())
			return

		case err := <-client.Errors():
			logger.Error("connection error", "error", err)
			printSummary(counts, time.Since(start))
			os.Exit(1)

		case <-ticker.C:
			printSummary(counts, time.Since(start))

		case msg, ok := <-client.Messages():
			if !ok {
				printSummary(counts, time.Since(start))
				return
			}
			feed, msgType := "?", "?"
			if frame, err := msg.Frame(); err == nil {
				feed, msgType = frame.Feed, frame.MessageType
			}
			counts[feed+"/"+msgType]++

			if *verbose {
				fmt.Printf("%s %s\n", msg.ReceivedAt.Format("15:04:05.000"), msg.Data)
			} else {
				fmt.Printf("%s [%s] type=%s bytes=%d\n",
					msg.ReceivedAt.Format("15:04:05.000"), feed, msgType, len(msg.Data))
			}
		}
	}
}

func printSummary(counts map[string]int, elapsed time.Duration) {
	fmt.Printf("--- %s elapsed ---\n", elapsed.Round(time.Second))
	for _, key := range sortedKeys(counts) {
		fmt.Printf("  %-8s %d\n", key, counts[key])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
