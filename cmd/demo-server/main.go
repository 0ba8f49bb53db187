package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"rankkit/api/httpapi"
	"rankkit/core"
	"rankkit/engine"
	"rankkit/rank"
	"rankkit/realtime"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	players := flag.Int("players", 50, "random players seeded per board")
	flag.Parse()

	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()
	hub := realtime.NewHub()
	svc, err := rank.New(ctx,
		rank.WithRealtime(hub),
		rank.WithBoard("desc", core.Descending),
		rank.WithBoard("asc", core.Ascending),
	)
	if err != nil {
		slog.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	for _, b := range svc.Boards() {
		if err := seed(ctx, svc, b.Name, 1, *players); err != nil {
			slog.Error("failed to seed board", "board", b.Name, "error", err)
			os.Exit(1)
		}
	}

	handler := httpapi.NewMux(svc, hub, httpapi.Options{
		AllowCORSOrigin: "*",
		Extend: func(r *mux.Router) {
			r.HandleFunc("/boards/{board}/random", randomHandler(svc)).Methods(http.MethodPost)
		},
	})

	slog.Info("starting demo server", "address", *addr, "boards", svc.Boards())

	if err := http.ListenAndServe(*addr, handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

// randomHandler adds num players with random scores after the existing ones.
func randomHandler(svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board := mux.Vars(r)["board"]
		num := 10
		if raw := r.URL.Query().Get("num"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 10000 {
				http.Error(w, "num must be between 1 and 10000", http.StatusBadRequest)
				return
			}
			num = n
		}
		count, err := svc.Count(r.Context(), board)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err := seed(r.Context(), svc, board, int(count)+1, num); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"board": board, "added": num})
	}
}

// seed writes players first..first+n-1 with scores in [0, 1000).
func seed(ctx context.Context, svc *engine.Service, board string, first, n int) error {
	for i := first; i < first+n; i++ {
		name := fmt.Sprintf("player%d", i)
		if err := svc.SetScore(ctx, board, name, float64(rand.IntN(1000))); err != nil {
			return err
		}
	}
	return nil
}
