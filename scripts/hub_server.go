// Package main runs a demo hub server for local tracker development. It
// speaks the tracker's frame protocol, keeps per-trip rooms and feeds joined
// clients a simulated vehicle moving along a small loop.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type joinPayload struct {
	TripID string `json:"tripId"`
}

type hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	ws *websocket.Conn
	mu sync.Mutex // serializes writes
}

func (c *client) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

func (h *hub) join(tripID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[tripID] == nil {
		h.rooms[tripID] = map[*client]struct{}{}
	}
	h.rooms[tripID][c] = struct{}{}
}

func (h *hub) leave(tripID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[tripID], c)
}

func (h *hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		delete(room, c)
	}
}

func (h *hub) broadcast(tripID, target string, payload any) {
	b, _ := json.Marshal(payload)
	h.mu.Lock()
	members := make([]*client, 0, len(h.rooms[tripID]))
	for c := range h.rooms[tripID] {
		members = append(members, c)
	}
	h.mu.Unlock()
	for _, c := range members {
		if err := c.send(frame{Type: "invocation", Target: target, Payload: b}); err != nil {
			log.Printf("broadcast: %v", err)
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade: %v", err)
		return
	}
	c := &client{ws: ws}
	defer func() {
		h.drop(c)
		_ = ws.Close()
	}()
	log.Printf("client connected: %s", r.RemoteAddr)

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			log.Printf("client gone: %v", err)
			return
		}
		switch f.Type {
		case "ping":
			_ = c.send(frame{Type: "pong"})
			continue
		case "invocation":
		default:
			continue
		}

		switch f.Target {
		case "JoinTrip":
			var p joinPayload
			_ = json.Unmarshal(f.Payload, &p)
			h.join(p.TripID, c)
			log.Printf("join %s", p.TripID)
		case "LeaveTrip":
			var p joinPayload
			_ = json.Unmarshal(f.Payload, &p)
			h.leave(p.TripID, c)
			log.Printf("leave %s", p.TripID)
		case "SendLocation":
			var p joinPayload
			_ = json.Unmarshal(f.Payload, &p)
			// echo driver positions to everyone else in the room
			h.broadcast(p.TripID, "ReceiveLocationUpdate", json.RawMessage(f.Payload))
		}
		if f.ID != "" {
			_ = c.send(frame{Type: "completion", ID: f.ID})
		}
	}
}

// simulate drives a fake vehicle around a loop for SIM_TRIP_ID.
func (h *hub) simulate(tripID string) {
	loop := [][2]float64{
		{24.710, 46.670},
		{24.714, 46.675},
		{24.719, 46.681},
		{24.724, 46.688},
		{24.719, 46.681},
		{24.714, 46.675},
	}
	i := 0
	for range time.Tick(2 * time.Second) {
		p := loop[i%len(loop)]
		i++
		h.broadcast(tripID, "ReceiveLocationUpdate", map[string]any{
			"tripId":    tripID,
			"lat":       p[0],
			"lng":       p[1],
			"isMoving":  true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}
	h := &hub{rooms: map[string]map[*client]struct{}{}}
	if tripID := os.Getenv("SIM_TRIP_ID"); tripID != "" {
		go h.simulate(tripID)
	}
	http.HandleFunc("/hub", h.handleWS)
	log.Printf("demo hub listening on :%s/hub", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
