// Command sightline-tail follows a sightline server's event stream from a
// terminal. It maintains the rolling window locally and prints each event
// as it arrives, reconnecting automatically when the server goes away.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sightline-hq/sightline/internal/consumer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url  = flag.String("url", "ws://localhost:8080/ws", "stream endpoint")
		poll = flag.Duration("poll", time.Second, "window poll interval")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := consumer.New(consumer.WebSocketDial(*url), consumer.Options{})
	c.Start()
	defer c.Close()

	slog.Info("following stream", "url", *url)

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	var lastSeen string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			events := c.Events()
			// Newest-first window: print anything newer than the last
			// event we reported, oldest of the new batch first.
			fresh := 0
			for _, ev := range events {
				if ev.ID == lastSeen {
					break
				}
				fresh++
			}
			for i := fresh - 1; i >= 0; i-- {
				ev := events[i]
				fmt.Printf("%s  %-12s %-20s %s\n",
					ev.Timestamp.Format(time.TimeOnly), ev.Status, ev.HookEvent, ev.ToolName)
			}
			if len(events) > 0 {
				lastSeen = events[0].ID
			}
			if !c.Connected() {
				if err := c.LastErr(); err != nil {
					slog.Warn("disconnected", "state", c.State(), "error", err)
				}
			}
		}
	}
}
