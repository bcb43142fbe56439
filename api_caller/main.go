package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"load_simulator/internal/profile"
	"load_simulator/internal/snapshot"

	"go.uber.org/zap"
)

func main() {
	target := flag.String("target", "http://localhost:3000", "base URL of the load simulator")
	name := flag.String("name", "api-caller", "leaderboard name to report under")
	rotate := flag.Bool("rotate", true, "switch the load level between bursts")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Endpoints that are recorded into the request window
	paths := []string{
		"/api/leaderboard",
		"/api/identity",
		"/api/profile",
		"/logs/recent",
		"/info",
		"/does-not-exist",
	}

	client := &http.Client{Timeout: 10 * time.Second}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	callCount := 0
	burst := 0
	logger.Info("Starting API caller with bursty random calls", zap.String("target", *target))

	// The outer loop runs until interrupted, choosing a new task each time.
	for ctx.Err() == nil {
		burst++

		if *rotate && burst%3 == 0 {
			level := profile.Levels[r.Intn(len(profile.Levels))]
			if err := post(ctx, client, *target+"/api/load/"+string(level)); err != nil {
				logger.Error("Failed to change load level", zap.Error(err))
			} else {
				logger.Info("Changed load level", zap.String("level", string(level)))
			}
		}

		// Choose a random path and a random number of calls for this burst (10 to 50)
		chosen := paths[r.Intn(len(paths))]
		repetitions := r.Intn(41) + 10
		logger.Info("Starting new burst", zap.String("path", chosen), zap.Int("calls", repetitions))

		for i := 0; i < repetitions && ctx.Err() == nil; i++ {
			status, err := get(ctx, client, *target+chosen)
			if err != nil {
				logger.Warn("Request failed", zap.String("path", chosen), zap.Error(err))
				continue
			}
			callCount++
			logger.Debug("Call finished", zap.Int("call", callCount), zap.Int("status", status))

			// A short delay between each call within the burst.
			sleep(ctx, 200*time.Millisecond)
		}

		if snap, err := readSnapshot(ctx, client, *target+"/api/metrics?name="+*name); err != nil {
			logger.Error("Failed to read metrics", zap.Error(err))
		} else {
			logger.Info("Burst finished",
				zap.String("level", string(snap.Level)),
				zap.Float64("rps", snap.RPS),
				zap.Float64("cpu", snap.CPU),
				zap.Int64("memory_mb", snap.MemoryMB),
				zap.Float64("response_time_ms", snap.ResponseTimeMs),
				zap.Float64("error_rate", snap.ErrorRate),
				zap.String("warning", snap.Warning),
			)
		}

		// A longer pause between bursts to make the changes more noticeable.
		sleep(ctx, 5*time.Second)
	}

	logger.Info("API caller stopped", zap.Int("calls", callCount))
}

func get(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func post(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func readSnapshot(ctx context.Context, client *http.Client, url string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snap, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return snap, err
	}
	err = json.NewDecoder(resp.Body).Decode(&snap)
	return snap, err
}

// checkStatus turns a non-2xx response into an error carrying the body
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status, strings.TrimSpace(string(body)))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
