package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	s := newState()
	r := newRouter(s)

	body, _ := json.Marshal(config{ClientServerDrop: 0.5, ServerClientDrop: 0.1, WindowSize: 4, RecvDelay: 2})
	req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /config status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/config", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var got config
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ClientServerDrop != 0.5 || got.WindowSize != 4 || got.RecvDelay != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestStatisticsAccumulateAndReset(t *testing.T) {
	s := newState()
	r := newRouter(s)

	post := func(deltas map[string]int) {
		body, _ := json.Marshal(deltas)
		req := httptest.NewRequest(http.MethodPost, "/statistics", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
	}

	post(map[string]int{"client_sent": 3})
	post(map[string]int{"client_sent": 2, "server_recv": 1})

	req := httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var payload struct {
		Sample map[string]int `json:"sample"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Sample["client_sent"] != 5 || payload.Sample["server_recv"] != 1 {
		t.Fatalf("got %+v", payload.Sample)
	}

	req = httptest.NewRequest(http.MethodDelete, "/statistics", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	json.NewDecoder(rec.Body).Decode(&payload)
	for _, k := range statisticsKeys {
		if payload.Sample[k] != 0 {
			t.Fatalf("expected reset counter %s, got %d", k, payload.Sample[k])
		}
	}
}

func TestStatisticsIgnoresUnknownKeys(t *testing.T) {
	s := newState()
	r := newRouter(s)

	body, _ := json.Marshal(map[string]int{"not_a_real_counter": 99})
	req := httptest.NewRequest(http.MethodPost, "/statistics", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/statistics", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var payload struct {
		Sample map[string]int `json:"sample"`
	}
	json.NewDecoder(rec.Body).Decode(&payload)
	if _, exists := payload.Sample["not_a_real_counter"]; exists {
		t.Fatalf("unknown counter leaked into statistics: %+v", payload.Sample)
	}
}
