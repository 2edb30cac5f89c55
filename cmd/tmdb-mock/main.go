package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
)

// fixtures maps a TMDB v3 path (without the /3 prefix), e.g.
// "/trending/movie/week", to the JSON body returned for it.
type fixtures map[string]json.RawMessage

func main() {
	var (
		port     = flag.String("port", "9098", "port to listen on")
		data     = flag.String("data", "mock-tmdb.json", "path to mock fixture file")
		apiKey   = flag.String("api-key", "mock-key", "api_key every request must carry")
		failRate = flag.Int("fail-every", 0, "answer every Nth request with 503 (0 disables)")
		logReqs  = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	file, err := os.ReadFile(*data)
	if err != nil {
		log.Fatalf("read mock data: %v", err)
	}

	var payload fixtures
	if err := json.Unmarshal(file, &payload); err != nil {
		log.Fatalf("parse mock data: %v", err)
	}

	var served atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		if *logReqs {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != *apiKey {
			writeStatus(w, http.StatusUnauthorized, "Invalid API key: You must be granted a valid key.")
			return
		}
		if *failRate > 0 && n%int64(*failRate) == 0 {
			writeStatus(w, http.StatusServiceUnavailable, "Service offline for maintenance.")
			return
		}

		body, ok := payload[strings.TrimPrefix(r.URL.Path, "/3")]
		if !ok {
			writeStatus(w, http.StatusNotFound, "The resource you requested could not be found.")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(body); err != nil {
			log.Printf("write response: %v", err)
		}
	})

	addr := ":" + *port
	log.Printf("mock tmdb listening on %s with %d fixtures", addr, len(payload))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func writeStatus(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":        false,
		"status_message": message,
	})
}
