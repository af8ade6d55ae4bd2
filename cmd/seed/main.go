package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Clark-Hu/business-ratings/internal/client"
)

type fixture struct {
	BusinessID int64   `json:"business_id"`
	CustomerID int64   `json:"customer_id"`
	Rating     int     `json:"rating"`
	Review     *string `json:"review"`
}

func main() {
	var (
		baseURL = flag.String("url", envOr("RATINGS_API_URL", "http://localhost:8080"), "base URL of the ratings service")
		data    = flag.String("data", "cmd/seed/ratings.json", "path to a JSON array of ratings")
		timeout = flag.Duration("timeout", 5*time.Second, "per-request timeout")
	)
	flag.Parse()

	file, err := os.ReadFile(*data)
	if err != nil {
		log.Fatalf("read fixtures: %v", err)
	}
	var fixtures []fixture
	if err := json.Unmarshal(file, &fixtures); err != nil {
		log.Fatalf("parse fixtures: %v", err)
	}

	logger := log.New(os.Stderr, "[ratings-seed] ", log.LstdFlags)
	api, err := client.NewHTTPClient(*baseURL, *timeout, logger)
	if err != nil {
		log.Fatalf("init client: %v", err)
	}

	ctx := context.Background()
	businesses := make(map[int64]struct{})
	for i, f := range fixtures {
		created, err := api.Create(ctx, client.RatingInput{
			BusinessID: f.BusinessID,
			CustomerID: f.CustomerID,
			Rating:     f.Rating,
			Review:     f.Review,
		})
		if err != nil {
			log.Fatalf("create fixture %d: %v", i, err)
		}
		businesses[created.BusinessID] = struct{}{}
	}
	logger.Printf("created %d ratings", len(fixtures))

	ids := make([]int64, 0, len(businesses))
	for id := range businesses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		avg, err := api.Average(ctx, id)
		if err != nil {
			log.Fatalf("average for business %d: %v", id, err)
		}
		fmt.Printf("business %d: average %.2f over %d ratings\n", avg.BusinessID, avg.AverageRating, avg.TotalRatings)
	}
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
