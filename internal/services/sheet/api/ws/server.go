// Package ws serves live sheet editing over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
	"github.com/louisbranch/charsheet/internal/platform/timeouts"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/preview"
	"github.com/louisbranch/charsheet/internal/services/sheet/layout"
	"github.com/louisbranch/charsheet/internal/services/sheet/storage"
)

const (
	handshakeTimeout = timeouts.Handshake
	readTimeout      = timeouts.SocketIdle
	writeTimeout     = timeouts.SocketWrite
	outboxSize       = 32
)

// Config wires a Server.
type Config struct {
	Store         storage.ValueStore
	Layout        layout.Layout
	Table         *advancement.CostTable
	Recorder      preview.Recorder
	Debounce      time.Duration
	DefaultLocale string
}

// Server upgrades HTTP requests to sheet editing connections.
type Server struct {
	cfg      Config
	sheets   *registry
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	// base is cancelled by Close and parents every session context.
	base     context.Context
	shutdown context.CancelFunc

	mu     sync.Mutex
	closed bool
	live   sync.WaitGroup
}

// NewServer creates a websocket server.
func NewServer(cfg Config) *Server {
	if cfg.Table == nil {
		cfg.Table = advancement.DefaultCostTable()
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		base:     base,
		shutdown: shutdown,
		sheets:   newRegistry(),
		tracer:   otel.Tracer("github.com/louisbranch/charsheet/internal/services/sheet/api/ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler serves one connection per request.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.track() {
			closeWith(conn, "server shutting down")
			return
		}
		defer s.live.Done()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stopBase := context.AfterFunc(s.base, cancel)
		defer stopBase()
		// Closing the connection unblocks a pending read.
		stopConn := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stopConn()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		if !s.sheets.acquire(hello.SheetID) {
			rend := newRenderer(s.locale(hello))
			inUse := apperrors.WithMetadata(apperrors.CodeSheetInUse, "sheet already open", map[string]string{"SheetID": hello.SheetID})
			s.reject(conn, rend.error(inUse))
			return
		}
		defer s.sheets.release(hello.SheetID)

		s.serve(ctx, cancel, conn, hello)
	}
}

// track registers a live connection, false once Close has been called.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.live.Add(1)
	return true
}

// Close cancels every live session and waits for their loops to finish, or
// for ctx to be done. Connections arriving afterwards are refused.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.shutdown()

	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sheet sessions: %w", ctx.Err())
	}
}

func (s *Server) serve(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, hello HelloMsg) {
	rend := newRenderer(s.locale(hello))
	session, err := s.open(ctx, hello.SheetID)
	if err != nil {
		log.Printf("open sheet %s: %v", hello.SheetID, err)
		s.reject(conn, rend.error(err))
		return
	}
	if err := writeJSON(conn, WelcomeMsg{
		Type:            TypeWelcome,
		ProtocolVersion: ProtocolVersion,
		Locale:          rend.locale,
		Sheet:           session.Sheet().Snapshot(),
	}); err != nil {
		return
	}

	out := make(chan []byte, outboxSize)
	loop := preview.NewLoop(session, s.cfg.Debounce, func(ctx context.Context, result preview.Result) {
		b, err := json.Marshal(rend.update(result))
		if err != nil {
			log.Printf("encode update: %v", err)
			return
		}
		select {
		case out <- b:
		case <-ctx.Done():
		}
	}, preview.WithTracer(s.tracer))
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	// Writer goroutine.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		if err := loop.Submit(ctx, ev); err != nil {
			return
		}
	}
}

// open builds the editing session of a sheet from its stored values.
func (s *Server) open(ctx context.Context, sheetID string) (*preview.Session, error) {
	if s.cfg.Store == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	scoped := storage.Scope(s.cfg.Store, sheetID)
	values, err := scoped.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sheet values: %w", err)
	}
	sh, err := s.cfg.Layout.Build(sheetID, values)
	if err != nil {
		return nil, fmt.Errorf("build sheet: %w", err)
	}
	opts := []preview.Option{preview.WithStorage(scoped)}
	if s.cfg.Recorder != nil {
		opts = append(opts, preview.WithRecorder(s.cfg.Recorder))
	}
	return preview.NewSession(sh, s.cfg.Table, opts...), nil
}

func (s *Server) handshake(conn *websocket.Conn) (HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return HelloMsg{}, false
	}
	base, err := DecodeBase(msg)
	if err != nil || base.Type != TypeHello {
		closeWith(conn, "expected HELLO")
		return HelloMsg{}, false
	}
	var hello HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "malformed HELLO")
		return HelloMsg{}, false
	}
	if hello.ProtocolVersion != ProtocolVersion {
		closeWith(conn, "bad protocol_version")
		return HelloMsg{}, false
	}
	hello.SheetID = strings.TrimSpace(hello.SheetID)
	if hello.SheetID == "" {
		closeWith(conn, "sheet_id is required")
		return HelloMsg{}, false
	}
	return hello, true
}

func (s *Server) locale(hello HelloMsg) string {
	if locale := strings.TrimSpace(hello.Locale); locale != "" {
		return locale
	}
	return s.cfg.DefaultLocale
}

func (s *Server) reject(conn *websocket.Conn, msg *ErrorMsg) {
	msg.Type = TypeError
	_ = writeJSON(conn, msg)
	closeWith(conn, msg.Code)
}

func decodeEvent(b []byte) (preview.Event, bool) {
	base, err := DecodeBase(b)
	if err != nil || base.Type != TypeEvent {
		return preview.Event{}, false
	}
	var msg EventMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return preview.Event{}, false
	}
	kind, ok := preview.EventKindFromName(msg.Event)
	if !ok {
		return preview.Event{}, false
	}
	return preview.Event{
		Kind:    kind,
		FieldID: strings.TrimSpace(msg.FieldID),
		Text:    msg.Text,
		Key:     msg.Key,
	}, true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
