// Command controller runs the HTTP control-plane service: live config
// for drop rates and window/recv-delay hints, plus accumulated
// per-endpoint statistics, consumed by sender/receiver/proxy via
// controllerclient.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/urfave/cli"
)

type config struct {
	ClientServerDrop float64 `json:"client_server_drop"`
	ServerClientDrop float64 `json:"server_client_drop"`
	WindowSize       float64 `json:"window_size"`
	RecvDelay        float64 `json:"recv_delay"`
}

var statisticsKeys = []string{
	"client_sent", "client_recv",
	"proxy_sent", "proxy_recv",
	"server_sent", "server_recv",
}

type state struct {
	mu    sync.RWMutex
	cfg   config
	stats map[string]int
}

func newState() *state {
	s := &state{stats: make(map[string]int, len(statisticsKeys))}
	for _, k := range statisticsKeys {
		s.stats[k] = 0
	}
	s.cfg.WindowSize = 1
	return s
}

func (s *state) getConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	json.NewEncoder(w).Encode(s.cfg)
}

func (s *state) postConfig(w http.ResponseWriter, r *http.Request) {
	var incoming config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.cfg = incoming
	s.mu.Unlock()
}

func (s *state) postStatistics(w http.ResponseWriter, r *http.Request) {
	var deltas map[string]int
	if err := json.NewDecoder(r.Body).Decode(&deltas); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for k, delta := range deltas {
		if _, known := s.stats[k]; known {
			s.stats[k] += delta
		}
	}
	s.mu.Unlock()
}

func (s *state) deleteStatistics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for k := range s.stats {
		s.stats[k] = 0
	}
	s.mu.Unlock()
}

func (s *state) getStatistics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	json.NewEncoder(w).Encode(map[string]interface{}{"sample": s.stats})
}

func newRouter(s *state) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/config", s.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", s.postConfig).Methods(http.MethodPost)
	r.HandleFunc("/statistics", s.postStatistics).Methods(http.MethodPost)
	r.HandleFunc("/statistics", s.deleteStatistics).Methods(http.MethodDelete)
	r.HandleFunc("/statistics", s.getStatistics).Methods(http.MethodGet)
	return r
}

func main() {
	app := cli.NewApp()
	app.Name = "controller"
	app.Usage = "monitoring and control-plane service for the reliable-stream transport"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "port",
			Value: 5000,
			Usage: "port to listen on",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
	}
	app.Action = func(c *cli.Context) error {
		if logPath := c.String("log"); logPath != "" {
			f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		s := newState()
		addr := fmt.Sprintf(":%d", c.Int("port"))
		log.Println("controller listening on", addr)
		return http.ListenAndServe(addr, newRouter(s))
	}

	checkError(app.Run(os.Args))
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
