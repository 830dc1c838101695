// Package api serves the catalog's read-only JSON API and a WebSocket
// feed of catalog changes.
//
// The REST surface lives under /api2/ and mirrors the catalog's
// series: /api2/m is a paginated listing of schemes, /api2/m13 is one
// scheme with its related entities embedded, and /api2/rel exposes the
// raw relation records. The WebSocket endpoint at /ws broadcasts a
// message for every committed revision, letting clients follow edits
// made from the command line while the server runs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mscwg/mscat/internal/identifier"
	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/relation"
)

// MessageType defines the type of feed message
type MessageType string

const (
	// MessageTypeRecordUpdate indicates a catalog record was written or deleted
	MessageTypeRecordUpdate MessageType = "record_update"

	// MessageTypeRelationUpdate indicates a relation record changed
	MessageTypeRelationUpdate MessageType = "relation_update"

	// MessageTypeHello is sent once when a client connects
	MessageTypeHello MessageType = "hello"
)

// Message represents a feed broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// UpdateData describes one committed revision
type UpdateData struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Action     string `json:"action"`
}

// Server serves the JSON API and manages WebSocket feed connections
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	catalog *record.Catalog

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast    chan Message
	pollInterval time.Duration

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Logging
	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080)
	Port int

	// Catalog backing the API
	Catalog *record.Catalog

	// How often the changelog is checked for feed updates
	// (default: 2s)
	PollInterval time.Duration

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// NewServer creates a new API server over the given catalog
func NewServer(config *Config) *Server {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	port := config.Port
	if port == 0 {
		port = 8080
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      fmt.Sprintf(":%d", port),
		catalog:   config.Catalog,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
	s.pollInterval = config.PollInterval
	if s.pollInterval == 0 {
		s.pollInterval = 2 * time.Second
	}
	return s
}

// Start begins the HTTP server, the broadcast loop, and the changelog
// poller that feeds it
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go s.pollChangelog()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Catalog API listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Handler returns the server's route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api2/", s.handleAPI)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping catalog API")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Catalog API stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// pollChangelog tails the catalog's changelog and turns new revisions
// into feed messages. Revisions committed before the server started
// are not replayed.
func (s *Server) pollChangelog() {
	defer s.wg.Done()

	lastSeq, err := s.catalog.Data.LastChangeSeq(s.ctx)
	if err != nil {
		s.logger.Printf("Changelog poll disabled: %v", err)
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			changes, err := s.catalog.Data.ChangesSince(s.ctx, lastSeq)
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Printf("Changelog poll failed: %v", err)
				}
				continue
			}
			for _, c := range changes {
				lastSeq = c.Seq
				msgType := MessageTypeRecordUpdate
				if c.Collection == relation.Collection {
					msgType = MessageTypeRelationUpdate
				}
				data, err := json.Marshal(UpdateData{
					Collection: c.Collection,
					Key:        c.Key,
					Action:     c.Action,
				})
				if err != nil {
					continue
				}
				s.Broadcast(Message{
					Type:      msgType,
					Timestamp: c.ChangedAt,
					Data:      data,
				})
			}
		}
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	hello := Message{
		Type:      MessageTypeHello,
		Timestamp: time.Now(),
	}
	helloData, _ := json.Marshal(hello)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, helloData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// Client messages are not processed
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// recordPath matches a series code with an optional record number, the
// tail of URLs like /api2/m and /api2/m13.
var recordPath = regexp.MustCompile(`^([a-z_]+?)([1-9][0-9]*)?$`)

// handleAPI routes everything under /api2/
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api2/")
	switch {
	case rest == "rel":
		s.handleRelationList(w, r)
	case strings.HasPrefix(rest, "rel/"):
		s.handleRelation(w, r, strings.TrimPrefix(rest, "rel/"))
	default:
		m := recordPath.FindStringSubmatch(rest)
		if m == nil {
			http.NotFound(w, r)
			return
		}
		series, ok := record.SeriesByCode(m[1])
		if !ok {
			http.NotFound(w, r)
			return
		}
		if m[2] == "" {
			s.handleList(w, r, series)
			return
		}
		number, err := strconv.Atoi(m[2])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.handleRecord(w, r, series, number)
	}
}

// handleList serves one page of a series listing
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, series record.Series) {
	p, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.catalog.All(r.Context(), series.Code)
	if err != nil {
		s.serverError(w, err)
		return
	}

	emb := newEmbellisher(s.catalog, baseURL(r))
	items := make([]any, 0, len(records))
	for _, rec := range records {
		data, err := emb.record(r.Context(), rec, false)
		if err != nil {
			s.serverError(w, err)
			return
		}
		items = append(items, data)
	}

	link := fmt.Sprintf("%s/api2/%s", baseURL(r), series.Code)
	resp, err := asResponsePage(items, link, p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, resp)
}

// handleRecord serves a single record with its related entities
// embedded one level deep
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, series record.Series, number int) {
	rec, err := s.catalog.Load(r.Context(), series.Code, number)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !rec.Saved() {
		http.NotFound(w, r)
		return
	}

	emb := newEmbellisher(s.catalog, baseURL(r))
	data, err := emb.record(r.Context(), rec, true)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, asResponseItem(data))
}

// handleRelationList serves one page of the relation records
func (s *Server) handleRelationList(w http.ResponseWriter, r *http.Request) {
	p, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	subjects, records, err := s.catalog.Relations.All(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]any, 0, len(subjects))
	for _, subject := range subjects {
		items = append(items, relationDocument(subject, records[subject]))
	}

	link := baseURL(r) + "/api2/rel"
	resp, err := asResponsePage(items, link, p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, resp)
}

// handleRelation serves one subject's relation record. The identifier
// may be given with or without its msc: prefix.
func (s *Server) handleRelation(w http.ResponseWriter, r *http.Request, id string) {
	if !strings.HasPrefix(id, identifier.Prefix) {
		id = identifier.Prefix + id
	}
	if !identifier.IsValid(id) {
		http.NotFound(w, r)
		return
	}

	edges, err := s.catalog.Relations.Edges(r.Context(), id)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, asResponseItem(relationDocument(id, edges)))
}

// relationDocument rebuilds the adjacency document shape from a
// subject and its edge map
func relationDocument(subject string, edges map[string][]string) map[string]any {
	doc := make(map[string]any, len(edges)+1)
	doc["@id"] = subject
	for predicate, objects := range edges {
		doc[predicate] = objects
	}
	return doc
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Metadata Standards Catalog</title>
</head>
<body>
    <h1>Metadata Standards Catalog API</h1>
    <p>Records: <code>/api2/{series}</code> and <code>/api2/{series}{number}</code></p>
    <p>Relations: <code>/api2/rel</code> and <code>/api2/rel/{mscid}</code></p>
    <p>Live update feed: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func parsePaging(r *http.Request) (paging, error) {
	var p paging
	q := r.URL.Query()
	for _, arg := range []struct {
		name string
		dst  *int
	}{
		{"start", &p.Start},
		{"page", &p.Page},
		{"pageSize", &p.PageSize},
	} {
		raw := q.Get(arg.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return paging{}, fmt.Errorf("invalid %s parameter", arg.name)
		}
		*arg.dst = n
	}
	return p, nil
}

func baseURL(r *http.Request) string {
	return "http://" + r.Host
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Printf("Request failed: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
