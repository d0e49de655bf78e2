package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/go-loom/loom/pkg/render"
	"github.com/go-loom/loom/pkg/view"
)

// debugServer exposes the engine's live trees over HTTP for inspection.
type debugServer struct {
	engine   *Engine
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*websocket.Conn]chan watchEvent
}

// watchEvent is one update batch pushed to /watch subscribers.
type watchEvent struct {
	Time  time.Time `json:"time"`
	Dirty []string  `json:"dirty"`
	Nodes []string  `json:"nodes"`
}

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Inspection tooling connects from anywhere during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StartDebugServer serves the inspection endpoints on port, returning the
// actual port (useful with port 0 for ephemeral allocation).
func (e *Engine) StartDebugServer(port int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.debug != nil {
		return e.debug.listener.Addr().(*net.TCPAddr).Port, nil
	}

	// Bind first to fail fast on port conflicts.
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("debug server listen: %w", err)
	}

	d := &debugServer{
		engine:   e,
		listener: listener,
		clients:  make(map[*websocket.Conn]chan watchEvent),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", d.recovered(d.handleState))
	mux.HandleFunc("/render-tree", d.recovered(d.handleRenderTree))
	mux.HandleFunc("/view-tree", d.recovered(d.handleViewTree))
	mux.HandleFunc("/dirty", d.recovered(d.handleDirty))
	mux.HandleFunc("/health", d.recovered(d.handleHealth))
	mux.HandleFunc("/watch", d.handleWatch)
	d.server = &http.Server{Handler: mux}

	go func() {
		if err := d.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			e.logger.Error().Err(err).Msg("debug server failed")
		}
	}()

	e.debug = d
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StopDebugServer shuts the inspection server down gracefully.
func (e *Engine) StopDebugServer() {
	e.mu.Lock()
	d := e.debug
	e.debug = nil
	e.mu.Unlock()

	if d == nil {
		return
	}
	d.mu.Lock()
	for conn, ch := range d.clients {
		close(ch)
		conn.Close()
	}
	d.clients = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.server.Shutdown(ctx)
}

// broadcast fans one flushed batch out to /watch subscribers. Called with
// the engine gate held; slow subscribers drop events rather than stall the
// flush.
func (d *debugServer) broadcast(dirty []string, patches []Patch) {
	event := watchEvent{Time: time.Now(), Dirty: dirty}
	for _, p := range patches {
		event.Nodes = append(event.Nodes, p.NodeID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

// recovered keeps a panicking inspection handler from taking the engine's
// process down.
func (d *debugServer) recovered(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				d.engine.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("debug handler panicked")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		fn(w, r)
	}
}

func (d *debugServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := make(chan watchEvent, 16)
	d.mu.Lock()
	d.clients[conn] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if _, ok := d.clients[conn]; ok {
			delete(d.clients, conn)
			close(ch)
		}
		d.mu.Unlock()
		conn.Close()
	}()

	// Drain the read side so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func (d *debugServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e := d.engine
	e.mu.Lock()
	snap := e.store.Snapshot()
	e.mu.Unlock()
	writeJSON(w, snap)
}

func (d *debugServer) handleDirty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e := d.engine
	e.mu.Lock()
	dirty := e.store.Dirty()
	e.mu.Unlock()
	writeJSON(w, struct {
		Dirty []string `json:"dirty"`
	}{Dirty: dirty})
}

func (d *debugServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// renderTreeNode is the serialized form of one render node.
type renderTreeNode struct {
	ID       string           `json:"id"`
	Kind     string           `json:"kind"`
	Style    render.Style     `json:"style,omitempty"`
	Content  any              `json:"content,omitempty"`
	Children []renderTreeNode `json:"children,omitempty"`
}

func (d *debugServer) handleRenderTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e := d.engine
	e.mu.Lock()
	if e.res == nil {
		e.mu.Unlock()
		http.Error(w, "no document loaded", http.StatusServiceUnavailable)
		return
	}
	tree := serializeRenderTree(e.res.Render)
	e.mu.Unlock()
	writeJSON(w, tree)
}

func serializeRenderTree(n *render.Node) renderTreeNode {
	out := renderTreeNode{
		ID:      n.ID,
		Kind:    n.Kind,
		Style:   n.Style,
		Content: n.Content,
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, serializeRenderTree(child))
	}
	return out
}

// viewTreeNode is the serialized form of one view node.
type viewTreeNode struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	ScopeID   string         `json:"scopeId,omitempty"`
	Reads     []string       `json:"reads,omitempty"`
	Writes    []string       `json:"writes,omitempty"`
	Pending   bool           `json:"pending,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	Children  []viewTreeNode `json:"children,omitempty"`
}

func (d *debugServer) handleViewTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e := d.engine
	e.mu.Lock()
	if e.res == nil {
		e.mu.Unlock()
		http.Error(w, "no document loaded", http.StatusServiceUnavailable)
		return
	}
	tree, ok := serializeViewTree(e.res.Tree, e.res.Root)
	e.mu.Unlock()
	if !ok {
		http.Error(w, "view tree root detached", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, tree)
}

func serializeViewTree(t *view.Tree, h view.Handle) (viewTreeNode, bool) {
	n, ok := t.Get(h)
	if !ok {
		return viewTreeNode{}, false
	}
	out := viewTreeNode{
		ID:      n.ID,
		Kind:    n.Kind,
		ScopeID: n.ScopeID,
		Reads:   n.ReadPaths(),
		Writes:  n.WritePaths(),
		Pending: n.Pending,
	}
	if !n.UpdatedAt.IsZero() {
		at := n.UpdatedAt
		out.UpdatedAt = &at
	}
	for _, child := range n.Children {
		if sub, ok := serializeViewTree(t, child); ok {
			out.Children = append(out.Children, sub)
		}
	}
	return out, true
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
