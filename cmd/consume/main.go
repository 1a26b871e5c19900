package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/curvewatch/curvewatch/internal/bus"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated bus broker addresses")
	topics := flag.String("topics", strings.Join(bus.OutputTopics(), ","), "comma-separated topics to tail")
	fromOffset := flag.Int64("from-offset", -1, "starting offset (-1 = new records only)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	consumer, err := bus.NewConsumer(
		strings.Split(*brokers, ","),
		strings.Split(*topics, ","),
		*fromOffset,
	)
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info("tailing topics", "topics", *topics, "from_offset", *fromOffset)

	for {
		messages, err := consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("poll failed", "error", err)
			continue
		}
		for _, m := range messages {
			fmt.Printf("%s@%d %s %s\n", m.Topic, m.Offset, m.Key, m.Payload)
		}
	}
}
