// Command query exercises the sketch query surfaces: the HTTP API, the gRPC
// API, or the heavy-hitter history stored in ClickHouse.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"Go2NetSketch/internal/api"
	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/engine/impl/sketch"
	"Go2NetSketch/internal/query"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' (HTTP), 'grpc', or 'direct' to read ClickHouse history.")
	addr := flag.String("addr", "", "Server address; defaults to localhost:8080 for api and localhost:50051 for grpc.")
	taskName := flag.String("task", "", "Task to query.")
	flow := flag.String("flow", "", "Flow to estimate, fields separated by spaces. Without it heavy hitters are listed.")
	strategy := flag.String("strategy", "", "Estimator (min, mean, mean_min).")
	limit := flag.Int("limit", 10, "Maximum number of rows.")
	chHost := flag.String("ch-host", "localhost", "ClickHouse host for direct mode.")
	chPort := flag.Int("ch-port", 9000, "ClickHouse port for direct mode.")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch *mode {
	case "api":
		err = queryViaAPI(ctx, withDefault(*addr, "localhost:8080"), *taskName, *flow, *strategy, *limit)
	case "grpc":
		err = queryViaGRPC(ctx, withDefault(*addr, "localhost:50051"), *taskName, *flow, *strategy, *limit)
	case "direct":
		err = queryHistory(ctx, config.ClickHouseConfig{Host: *chHost, Port: *chPort, Database: "default", Username: "default"},
			*taskName, *flow, *limit)
	default:
		err = fmt.Errorf("invalid mode %q, use 'api', 'grpc' or 'direct'", *mode)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func queryViaAPI(ctx context.Context, addr, task, flow, strategy string, limit int) error {
	var req *http.Request
	var err error
	if task == "" {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/v1/tasks", nil)
	} else if flow == "" {
		u := fmt.Sprintf("http://%s/api/v1/tasks/%s/heavy-hitters?limit=%d", addr, url.PathEscape(task), limit)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	} else {
		body, _ := json.Marshal(map[string]string{"task": task, "flow": flow, "strategy": strategy})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/api/v1/estimate", bytes.NewReader(body))
	}
	if err != nil {
		return err
	}
	log.Info().Msgf("sending %s %s", req.Method, req.URL)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, respBody)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func queryViaGRPC(ctx context.Context, addr, task, flow, strategy string, limit int) error {
	if task == "" {
		return fmt.Errorf("-task is required in grpc mode")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	client := api.NewClient(conn)

	if flow != "" {
		est, err := client.Estimate(ctx, task, flow, strategy)
		if err != nil {
			return err
		}
		fmt.Printf("%s [%s] %s: %d\n", est.Task, est.Strategy, est.Flow, est.Count)
		return nil
	}
	hs, err := client.HeavyHitters(ctx, task, limit)
	if err != nil {
		return err
	}
	for i, h := range hs {
		fmt.Printf("%2d. %-48s %d\n", i+1, h.Key, h.Count)
	}
	return nil
}

func queryHistory(ctx context.Context, cfg config.ClickHouseConfig, task, flow string, limit int) error {
	if task == "" {
		return fmt.Errorf("-task is required in direct mode")
	}
	conn, err := sketch.Connect(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	points, err := query.NewHistoryQuerier(conn).History(ctx, query.HistoryRequest{Task: task, Flow: flow, Limit: limit})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		log.Info().Msg("no data found for the specified criteria")
		return nil
	}
	for _, p := range points {
		kind := "heavy"
		if p.Kind == sketch.RowOverThreshold {
			kind = "over"
		}
		fmt.Printf("%s  %-5s %-48s %d (of %d)\n", p.Timestamp.Format(time.RFC3339), kind, p.Flow, p.Value, p.ElementsAdded)
	}
	return nil
}
