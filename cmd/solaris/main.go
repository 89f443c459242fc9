package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/solarisdb/pkg/config"
	"github.com/sanonone/solarisdb/pkg/core/distance"
	"github.com/sanonone/solarisdb/pkg/core/filter"
	"github.com/sanonone/solarisdb/pkg/core/types"
	"github.com/sanonone/solarisdb/pkg/solaris"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	metricsAddr := flag.String("metrics-addr", "", "Listen address for the Prometheus /metrics endpoint (e.g. :9100)")
	count := flag.Int("count", 1000, "Number of demo vectors to load")
	dim := flag.Int("dim", 32, "Dimension of the demo vectors")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics endpoint listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	db := solaris.New(cfg)
	if _, err := db.CreateCollection("demo", *dim, solaris.WithMetric(distance.Cosine)); err != nil {
		log.Fatalf("failed to create collection: %v", err)
	}

	col, err := db.GetCollection("demo")
	if err != nil {
		log.Fatalf("failed to get collection: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	batch := make([]types.Record, 0, cfg.Performance.BatchSize)
	loaded := 0
	for i := 0; i < *count; i++ {
		vec := make([]float32, *dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		batch = append(batch, types.Record{
			ID:       fmt.Sprintf("demo-%d", i),
			Vector:   vec,
			Metadata: map[string]string{"bucket": fmt.Sprintf("%d", i%10)},
		})
		if len(batch) == cfg.Performance.BatchSize || i == *count-1 {
			for _, res := range col.InsertBatch(batch) {
				if res.Err != nil {
					slog.Error("insert failed", "id", res.ID, "error", res.Err)
					continue
				}
				loaded++
			}
			batch = batch[:0]
		}
	}
	slog.Info("demo data loaded", "vectors", loaded, "dimension", *dim)

	query := make([]float32, *dim)
	for j := range query {
		query[j] = rng.Float32()
	}

	resp, err := col.Search(query, 5)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	fmt.Println("Top 5 nearest neighbors:")
	for i, r := range resp.Results {
		fmt.Printf("  %d. %-12s score=%.6f bucket=%s\n", i+1, r.ID, r.Score, r.Metadata["bucket"])
	}

	fresp, err := col.SearchFiltered(query, 5, filter.Single("bucket", "3", filter.Equals))
	if err != nil {
		log.Fatalf("filtered search failed: %v", err)
	}
	fmt.Println("Top 5 in bucket 3:")
	for i, r := range fresp.Results {
		fmt.Printf("  %d. %-12s score=%.6f\n", i+1, r.ID, r.Score)
	}

	info := db.Info()
	fmt.Printf("Database %q: %d collections, %d vectors\n", info.Name, len(info.Collections), info.TotalVectors)

	if cfg.Database.DataDirectory != "" {
		if err := db.Save(); err != nil {
			log.Fatalf("snapshot failed: %v", err)
		}
		slog.Info("snapshot saved", "dir", cfg.Database.DataDirectory)
	}
}
