package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"equity/internal/ops"
	"equity/internal/stream/redisstream"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env overrides apply)")
	file := flag.String("file", "", "Transaction file, one JSON payload per line")
	rate := flag.Int("rate", 0, "Messages per second (0=no pacing)")
	flag.Parse()

	if *file == "" {
		log.Fatalf("-file is required")
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatalf("redis addr is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s failed: %v", *file, err)
	}
	defer f.Close()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	var tick <-chan time.Time
	if *rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(*rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := context.Background()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	var sent int
	for sc.Scan() {
		payload := strings.TrimSpace(sc.Text())
		if payload == "" {
			continue
		}
		if tick != nil {
			<-tick
		}
		id, err := redisstream.Publish(ctx, client, cfg.Consumer.Stream.Stream, cfg.Consumer.Stream.Field, payload)
		if err != nil {
			log.Fatalf("publish line %d failed: %v", sent+1, err)
		}
		sent++
		log.Printf("%06d id=%s len=%d", sent, id, len(payload))
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("read %s failed: %v", *file, err)
	}
	log.Printf("published %d messages to %s", sent, cfg.Consumer.Stream.Stream)
}
