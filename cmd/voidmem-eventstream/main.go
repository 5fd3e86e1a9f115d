// voidmem-eventstream is a tiny websocket server that tails a manager's
// event log and republishes events as they occur, grounded on the
// server-side Upgrader pattern in niceyeti-tabular/server/server.go (the
// teacher itself only dials websockets as a client; this idiom is adopted
// from the broader example pack). Not present in original_source; useful
// for watching a live manager the way the teacher's Discord bot watches a
// live conversation.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vthunder/voidmem/internal/eventlog"
	"github.com/vthunder/voidmem/internal/telemetry/idlewatch"
	"github.com/vthunder/voidmem/internal/voidconfig"
	"github.com/vthunder/voidmem/internal/voidmem"
)

const (
	writeWait    = 1 * time.Second
	pollInterval = 250 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8787", "address to listen on")
	snapshotPath := flag.String("snapshot", "", "optional path to a persisted manager snapshot to seed the demo manager")
	idleAfter := flag.Duration("idle-after", 2*time.Minute, "log a notice once no new ticks have been observed for this long")
	flag.Parse()

	cfg := voidconfig.Defaults()
	cfg.ThreadSafe = true
	var m *voidmem.Manager
	if *snapshotPath != "" {
		m = voidmem.LoadJSON(*snapshotPath, cfg)
	}
	if m == nil {
		var err error
		m, err = voidmem.New(cfg)
		if err != nil {
			log.Fatalf("voidmem-eventstream: failed to construct manager: %v", err)
		}
	}

	watcher := idlewatch.New(m, 5*time.Second, *idleAfter)
	watcher.SetOnIdle(func(m *voidmem.Manager) {
		log.Printf("voidmem-eventstream: manager idle for %v at tick %d, no new reinforcement traffic", *idleAfter, m.Tick())
	})
	watcher.Start()
	defer watcher.Stop()

	http.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		serveEventStream(w, r, m)
	})

	log.Printf("voidmem-eventstream: listening on %s (ws endpoint: /events)", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("voidmem-eventstream: serve: %v", err)
	}
}

// serveEventStream upgrades the connection and polls ConsumeEvents at a
// fixed interval, writing each drained batch as a JSON array.
func serveEventStream(w http.ResponseWriter, r *http.Request, m *voidmem.Manager) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("voidmem-eventstream: upgrade failed: %v", err)
		return
	}
	defer closeConn(ws)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		events := m.ConsumeEvents()
		if len(events) == 0 {
			continue
		}
		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := ws.WriteJSON(marshalEvents(events)); err != nil {
			return
		}
	}
}

func marshalEvents(events []eventlog.Event) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, ev := range events {
		out[i] = ev.MarshalEntry()
	}
	return out
}

func closeConn(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
}
