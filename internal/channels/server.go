package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type ServerConfig struct {
	Listen string

	// MaxLineBytes bounds a single command line.
	MaxLineBytes int
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration

	Logger *log.Logger
}

// Server accepts newline-delimited commands over TCP and applies them to a
// Store. One command per line:
//
//	set <channel> <value>
//	fade <channel> <value> <ms>
//	get <channel>
//	list
//	ping
type Server struct {
	cfg   ServerConfig
	store *Store

	started atomic.Bool
	closed  atomic.Bool

	ln     net.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool

	clients  atomic.Int64
	commands atomic.Uint64
}

type ServerSnapshot struct {
	Addr     string `json:"addr"`
	Clients  int64  `json:"clients"`
	Commands uint64 `json:"commands"`
}

func NewServer(cfg ServerConfig, store *Store) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("channel server store is nil")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return nil, fmt.Errorf("channel server listen address is required")
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 4 * 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{cfg: cfg, store: store, conns: make(map[net.Conn]struct{})}, nil
}

// Start binds the listener and serves connections until ctx is canceled or
// Close is called.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("channel server is nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("channel server is closed")
	}
	if s.started.Swap(true) {
		return fmt.Errorf("channel server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("channel server listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(runCtx)
	}()
	go func() {
		<-runCtx.Done()
		_ = ln.Close()
		s.closeConns()
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s == nil || s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.closed.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Server) Snapshot() ServerSnapshot {
	if s == nil {
		return ServerSnapshot{}
	}
	out := ServerSnapshot{
		Clients:  s.clients.Load(),
		Commands: s.commands.Load(),
	}
	if a := s.Addr(); a != nil {
		out.Addr = a.String()
	}
	return out
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.cfg.Logger.Printf("channel server accept: %v", err)
			continue
		}
		if !s.trackConn(conn, true) {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			s.serveConn(conn)
		}()
	}
}

// trackConn reports false when the server is shutting down; conn is closed.
func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		if s.shutdown {
			_ = conn.Close()
			return false
		}
		s.conns[conn] = struct{}{}
		s.clients.Add(1)
		return true
	}
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.clients.Add(-1)
	}
	_ = conn.Close()
	return true
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.shutdown = true
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.cfg.Logger.Printf("channel client %s connected", remote)
	defer s.cfg.Logger.Printf("channel client %s disconnected", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), s.cfg.MaxLineBytes)
	w := bufio.NewWriter(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.cfg.Logger.Printf("channel client %s: %v", remote, err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := s.Execute(line)
		s.commands.Add(1)
		if reply == "" {
			continue
		}
		if _, err := w.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// Execute runs one command line and returns the reply. Successful set and
// fade commands reply with nothing.
func (s *Server) Execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch strings.ToLower(fields[0]) {
	case "ping":
		return "pong"
	case "list":
		return strings.Join(s.store.Names(), " ")
	case "get":
		if len(fields) != 2 {
			return "error: usage: get <channel>"
		}
		v, err := s.store.Get(fields[1])
		if err != nil {
			return "error: " + err.Error()
		}
		return fields[1] + " " + strconv.FormatFloat(v, 'f', 6, 64)
	case "set":
		if len(fields) != 3 {
			return "error: usage: set <channel> <value>"
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Sprintf("error: invalid value %q", fields[2])
		}
		if err := s.store.Set(fields[1], v); err != nil {
			return "error: " + err.Error()
		}
		return ""
	case "fade":
		if len(fields) != 4 {
			return "error: usage: fade <channel> <value> <ms>"
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Sprintf("error: invalid value %q", fields[2])
		}
		ms, err := strconv.Atoi(fields[3])
		if err != nil || ms < 0 {
			return fmt.Sprintf("error: invalid duration %q", fields[3])
		}
		if err := s.store.Fade(fields[1], v, time.Duration(ms)*time.Millisecond); err != nil {
			return "error: " + err.Error()
		}
		return ""
	default:
		return fmt.Sprintf("error: unknown command %q", fields[0])
	}
}
