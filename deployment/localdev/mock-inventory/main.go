package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

type rule struct {
	Application      string `json:"application"`
	Versions         string `json:"versions"`
	Notes            string `json:"notes,omitempty"`
	UnsupportedNotes string `json:"unsupported_notes,omitempty"`
}

type objectRequest struct {
	Class      string         `json:"class"`
	Properties map[string]any `json:"properties"`
}

type recordStore struct {
	mu      sync.Mutex
	next    int
	records map[string]objectRequest
}

func (s *recordStore) add(obj objectRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("rec-%06d", s.next)
	s.records[id] = obj
	return id
}

func (s *recordStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func main() {
	store := &recordStore{records: make(map[string]objectRequest)}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/objects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var obj objectRequest
			if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			if obj.Class != "DetectionRecord" {
				http.Error(w, "unsupported class", http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": store.add(obj)})
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]int{"count": store.count()})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"rules": []rule{
				{Application: "redis", Versions: ">=6", Notes: "Pinned to Redis 6+ for the fleet baseline.", UnsupportedNotes: "Upgrade Redis to 6.x before migrating."},
				{Application: "nginx", Versions: "all", Notes: "Official arm64 packages are available."},
			},
		})
	})

	logger := log.New(log.Writer(), "inventory-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
