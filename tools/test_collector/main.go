// Command test_collector is a local stand-in for a run-report
// collector. Point tm-uninstall's --collector-endpoint at
// ws://host:8088/stream or http://host:8088/hook and watch the
// per-row outcomes arrive.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

type envelope struct {
	RunID      string `json:"run_id"`
	Type       string `json:"type"`
	Row        int    `json:"row"`
	InstanceID string `json:"instance_id"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail"`
	CommandID  string `json:"command_id"`
	Total      int    `json:"total"`
	Dispatched int    `json:"dispatched"`
	Invalid    int    `json:"invalid"`
	Malformed  int    `json:"malformed"`
	Failed     int    `json:"failed"`
}

func show(e envelope) {
	switch e.Type {
	case "auth":
		log.Printf("run %s connected", e.RunID)
	case "row":
		log.Printf("run %s row %d: %s %s %s %s", e.RunID, e.Row, e.InstanceID, e.Outcome, e.CommandID, e.Detail)
	case "summary":
		log.Printf("run %s done: total=%d dispatched=%d invalid=%d malformed=%d failed=%d",
			e.RunID, e.Total, e.Dispatched, e.Invalid, e.Malformed, e.Failed)
	default:
		log.Printf("unknown envelope type %q", e.Type)
	}
}

func wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()
	for {
		var e envelope
		if err := conn.ReadJSON(&e); err != nil {
			log.Printf("ws read: %v", err)
			return
		}
		show(e)
	}
}

func httpHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(400)
		return
	}
	var e envelope
	if err := json.Unmarshal(body, &e); err != nil {
		log.Printf("http %s from %s: bad json: %v", r.URL.Path, r.RemoteAddr, err)
		w.WriteHeader(400)
		return
	}
	show(e)
	w.WriteHeader(200)
	w.Write([]byte("ok"))
}

func main() {
	addr := flag.String("addr", ":8088", "listen address")
	flag.Parse()
	http.HandleFunc("/stream", wsHandler)
	http.HandleFunc("/hook", httpHandler)
	srv := &http.Server{Addr: *addr, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	fmt.Printf("Test collector listening on %s\n", *addr)
	log.Fatal(srv.ListenAndServe())
}
