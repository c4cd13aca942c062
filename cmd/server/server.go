package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/viewdb"
	"github.com/nickyhof/viewdb/core"
	"github.com/nickyhof/viewdb/db"
	"github.com/nickyhof/viewdb/schema"
)

var errUnknownOp = errors.New("unknown op")

// Server is a TCP server that exposes view operations as JSON lines.
type Server struct {
	listener    net.Listener
	instance    *viewdb.Instance
	identity    core.Identity
	authConfig  *AuthConfig
	idleTimeout time.Duration
	tlsEnabled  bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewServer creates a server whose commits are recorded as identity.
func NewServer(instance *viewdb.Instance, identity core.Identity) *Server {
	return &Server{
		instance: instance,
		identity: identity,
		done:     make(chan struct{}),
	}
}

// NewServerWithAuth creates a server that requires AUTH before any request.
// Commits are recorded as the authenticated identity.
func NewServerWithAuth(instance *viewdb.Instance, authConfig *AuthConfig) *Server {
	return &Server{
		instance:   instance,
		authConfig: authConfig,
		done:       make(chan struct{}),
	}
}

// SetIdleTimeout closes connections that stay silent for longer than d.
func (s *Server) SetIdleTimeout(d time.Duration) {
	s.idleTimeout = d
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	log.Printf("View server listening on %s", listener.Addr())

	go s.acceptLoop()
	return nil
}

// StartTLS begins listening for TLS connections.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	s.listener = listener
	s.tlsEnabled = true

	log.Printf("View server listening on %s (TLS)", listener.Addr())

	go s.acceptLoop()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log.Printf("Client connected: %s", conn.RemoteAddr())
	connections.Inc()
	defer connections.Dec()

	state := &ConnectionState{}
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		if lower == "quit" || lower == "exit" {
			log.Printf("Client disconnected: %s", conn.RemoteAddr())
			return
		}

		var response Response
		if strings.HasPrefix(lower, "auth ") {
			response = s.handleAuth(line, state)
		} else {
			response = s.handleRequest(line, state)
		}

		data, err := EncodeResponse(response)
		if err != nil {
			log.Printf("Failed to encode response: %v", err)
			continue
		}

		if _, err := conn.Write(data); err != nil {
			log.Printf("Write error to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

func (s *Server) handleRequest(line string, state *ConnectionState) Response {
	identity := s.identity
	if s.authRequired() {
		if !state.IsAuthenticated() {
			return errorResponse(errors.New("authentication required: send AUTH JWT <token>"))
		}
		if state.expire(time.Now()) {
			return errorResponse(errors.New("authentication required: token expired"))
		}
		identity = *state.Identity()
	}

	req, err := DecodeRequest([]byte(line))
	if err != nil {
		requests.WithLabelValues("invalid", "error").Inc()
		return errorResponse(fmt.Errorf("invalid request: %w", err))
	}

	response := s.execute(s.instance.Engine(identity), req)
	outcome := "ok"
	if !response.Success {
		outcome = "error"
	}
	requests.WithLabelValues(opLabel(req.Op), outcome).Inc()
	return response
}

func (s *Server) execute(engine *db.Engine, req Request) Response {
	ctx := context.Background()

	switch req.Op {
	case OpList:
		return queryResponse(engine.ListViews(req.Database))
	case OpIndexes:
		return queryResponse(engine.ViewIndexes(req.Database, req.View))
	case OpDescribe:
		doc, err := engine.DescribeView(req.Database, req.View)
		if err != nil {
			return errorResponse(err)
		}
		data, err := schema.MarshalDocument(doc)
		if err != nil {
			return errorResponse(err)
		}
		return Response{Success: true, Type: "view", Result: data}
	case OpCount:
		count, err := engine.CountView(ctx, req.Database, req.View)
		if err != nil {
			return errorResponse(err)
		}
		data, _ := json.Marshal(CountResponse{Count: count})
		return Response{Success: true, Type: "count", Result: data}
	case OpCreate:
		if req.Definition == nil {
			return errorResponse(errors.New("create requires a definition"))
		}
		cfg, err := req.Definition.Config()
		if err != nil {
			return errorResponse(err)
		}
		return commitResponse(engine.CreateView(req.Database, cfg))
	case OpDrop:
		return commitResponse(engine.DropView(req.Database, req.View))
	case OpActivate:
		return commitResponse(engine.ActivateIndexes(req.Database, req.View, req.Names))
	case OpInactivate:
		if len(req.Names) != 1 {
			return errorResponse(errors.New("inactivate takes exactly one index name"))
		}
		return commitResponse(engine.InactivateIndex(req.Database, req.View, req.Names[0]))
	case OpInactivateAll:
		return commitResponse(engine.InactivateIndexes(req.Database, req.View))
	case OpRebuild:
		return commitResponse(engine.RebuildIndexes(req.Database, req.View))
	case OpRefresh:
		return commitResponse(engine.RefreshView(ctx, req.Database, req.View, req.Rows))
	case OpReload:
		return commitResponse(engine.ReloadViews(ctx))
	default:
		return errorResponse(fmt.Errorf("%w: %q", errUnknownOp, req.Op))
	}
}

func queryResponse(r db.QueryResult, err error) Response {
	if err != nil {
		return errorResponse(err)
	}
	data, _ := json.Marshal(QueryResponse{
		Columns:     r.Columns,
		Data:        r.Data,
		RecordsRead: r.RecordsRead,
		TimeMs:      r.ExecutionTimeSec * 1000,
	})
	return Response{Success: true, Type: "query", Result: data}
}

func commitResponse(r db.CommitResult, err error) Response {
	if err != nil {
		return errorResponse(err)
	}
	data, _ := json.Marshal(CommitResponse{
		Transaction:        r.Transaction.Id,
		ViewsCreated:       r.ViewsCreated,
		ViewsDropped:       r.ViewsDropped,
		ViewsLoaded:        r.ViewsLoaded,
		IndexesCreated:     r.IndexesCreated,
		IndexesDropped:     r.IndexesDropped,
		IndexesActivated:   r.IndexesActivated,
		IndexesInactivated: r.IndexesInactivated,
		RecordsWritten:     r.RecordsWritten,
		TimeMs:             r.ExecutionTimeSec * 1000,
	})
	return Response{Success: true, Type: "commit", Result: data}
}
