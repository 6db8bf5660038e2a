package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/layout"
	"github.com/louisbranch/charsheet/internal/services/sheet/storage"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func newMemoryStore(seed map[string]string) *memoryStore {
	return &memoryStore{values: map[string]map[string]string{"hero": seed}}
}

func (m *memoryStore) PutValue(_ context.Context, sheetID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[sheetID] == nil {
		m.values[sheetID] = map[string]string{}
	}
	m.values[sheetID][key] = value
	return nil
}

func (m *memoryStore) GetValue(_ context.Context, sheetID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[sheetID][key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (m *memoryStore) ListValues(_ context.Context, sheetID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for key, value := range m.values[sheetID] {
		out[key] = value
	}
	return out, nil
}

func newTestServer(t *testing.T, store *memoryStore) *httptest.Server {
	t.Helper()
	_, ts := newSheetServer(t, store)
	return ts
}

func newSheetServer(t *testing.T, store *memoryStore) (*Server, *httptest.Server) {
	t.Helper()
	l, err := layout.Parse([]byte("ledger: true\nfields:\n  - id: strength-a\n  - id: lore-aug\n"))
	if err != nil {
		t.Fatalf("parse layout: %v", err)
	}
	table, err := advancement.NewCostTable([]advancement.CostBracket{
		{StepsFrom: 0, StepsTo: 5, CharacteristicCost: 25, SkillCost: 10},
		{StepsFrom: 6, StepsTo: 10, CharacteristicCost: 30, SkillCost: 15},
	})
	if err != nil {
		t.Fatalf("cost table: %v", err)
	}
	srv := NewServer(Config{
		Store:         store,
		Layout:        l,
		Table:         table,
		DefaultLocale: "en-US",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func hello(t *testing.T, conn *websocket.Conn, locale string) WelcomeMsg {
	t.Helper()
	send(t, conn, HelloMsg{Type: TypeHello, ProtocolVersion: ProtocolVersion, SheetID: "hero", Locale: locale})
	welcome := receive[WelcomeMsg](t, conn)
	if welcome.Type != TypeWelcome {
		t.Fatalf("type = %q, want %q", welcome.Type, TypeWelcome)
	}
	return welcome
}

func TestWelcomeCarriesStoredSheet(t *testing.T) {
	store := newMemoryStore(map[string]string{"strength-a": "5", "strength-i": "40", "current-xp": "100", "spent-xp": "100"})
	conn := dial(t, newTestServer(t, store))

	welcome := hello(t, conn, "")
	if welcome.Locale != "en-US" {
		t.Fatalf("locale = %q, want en-US", welcome.Locale)
	}
	if welcome.Sheet.Ledger == nil || welcome.Sheet.Ledger.TotalXP != 200 {
		t.Fatalf("ledger = %+v, want total 200", welcome.Sheet.Ledger)
	}
	if len(welcome.Sheet.Fields) != 2 || welcome.Sheet.Fields[0].Final != 45 {
		t.Fatalf("fields = %+v, want strength final 45", welcome.Sheet.Fields)
	}
}

func TestPreviewAndCommit(t *testing.T) {
	store := newMemoryStore(map[string]string{"strength-a": "5", "current-xp": "100", "spent-xp": "100"})
	conn := dial(t, newTestServer(t, store))
	hello(t, conn, "en-US")

	send(t, conn, EventMsg{Type: TypeEvent, Event: "input", FieldID: "strength-a", Text: "+2"})
	update := receive[UpdateMsg](t, conn)
	if update.State != "previewing" || update.Preview == nil {
		t.Fatalf("update = %+v, want preview", update)
	}
	if update.Preview.Label != "Cost: 60 XP" || update.Preview.CurrentXP != 40 {
		t.Fatalf("preview = %+v, want cost 60 leaving 40", update.Preview)
	}

	send(t, conn, EventMsg{Type: TypeEvent, Event: "key", FieldID: "strength-a", Key: "Enter"})
	update = receive[UpdateMsg](t, conn)
	if update.Committed != "strength-a" || update.Sheet == nil || update.Sheet.Ledger.CurrentXP != 40 {
		t.Fatalf("update = %+v, want strength-a committed", update)
	}

	got, err := store.GetValue(context.Background(), "hero", "total-xp")
	if err != nil || got != "200" {
		t.Fatalf("total-xp = %q, %v; want 200", got, err)
	}
}

func TestInsufficientXPIsLocalized(t *testing.T) {
	store := newMemoryStore(map[string]string{"strength-a": "5", "current-xp": "10"})
	conn := dial(t, newTestServer(t, store))
	hello(t, conn, "ru-RU")

	send(t, conn, EventMsg{Type: TypeEvent, Event: "input", FieldID: "strength-a", Text: "+1"})
	update := receive[UpdateMsg](t, conn)
	if update.Preview == nil || update.Preview.Confirmable {
		t.Fatalf("update = %+v, want non-confirmable preview", update)
	}
	if update.Preview.Error == nil || update.Preview.Error.Code != "INSUFFICIENT_XP" || !update.Preview.Error.Recoverable {
		t.Fatalf("preview error = %+v, want recoverable INSUFFICIENT_XP", update.Preview.Error)
	}
	if want := "Недостаточно XP. Нужно: 30, есть: 10"; update.Preview.Label != want {
		t.Fatalf("label = %q, want %q", update.Preview.Label, want)
	}

	send(t, conn, EventMsg{Type: TypeEvent, Event: "confirm"})
	update = receive[UpdateMsg](t, conn)
	if update.Error == nil || update.Error.Code != "EDIT_NOT_CONFIRMABLE" || update.Error.Reason == nil {
		t.Fatalf("confirm error = %+v, want EDIT_NOT_CONFIRMABLE with reason", update.Error)
	}
}

func TestEscapeRestores(t *testing.T) {
	store := newMemoryStore(map[string]string{"lore-aug": "1+1", "current-xp": "100"})
	conn := dial(t, newTestServer(t, store))
	hello(t, conn, "")

	send(t, conn, EventMsg{Type: TypeEvent, Event: "input", FieldID: "lore-aug", Text: "abc"})
	update := receive[UpdateMsg](t, conn)
	if update.Preview == nil || update.Preview.Error == nil || update.Preview.Error.Code != "INVALID_EXPRESSION" {
		t.Fatalf("update = %+v, want invalid expression", update)
	}

	send(t, conn, EventMsg{Type: TypeEvent, Event: "key", FieldID: "lore-aug", Key: "Escape"})
	update = receive[UpdateMsg](t, conn)
	if update.Restored == nil || update.Restored.RawText != "1+1" || update.Restored.Steps != 2 {
		t.Fatalf("restored = %+v, want 1+1 at 2 steps", update.Restored)
	}
}

func TestSecondConnectionIsRefused(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(nil))
	first := dial(t, ts)
	hello(t, first, "")

	second := dial(t, ts)
	send(t, second, HelloMsg{Type: TypeHello, ProtocolVersion: ProtocolVersion, SheetID: "hero"})
	msg := receive[ErrorMsg](t, second)
	if msg.Type != TypeError || msg.Code != "SHEET_IN_USE" {
		t.Fatalf("msg = %+v, want SHEET_IN_USE", msg)
	}
}

func TestCloseEndsLiveSessions(t *testing.T) {
	srv, ts := newSheetServer(t, newMemoryStore(nil))
	conn := dial(t, ts)
	hello(t, conn, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !srv.sheets.acquire("hero") {
		t.Fatal("sheet still held after Close")
	}
	srv.sheets.release("hero")

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the closed session to end the connection")
	}

	late := dial(t, ts)
	_ = late.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := late.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	conn := dial(t, newTestServer(t, newMemoryStore(nil)))
	send(t, conn, HelloMsg{Type: TypeHello, ProtocolVersion: "0", SheetID: "hero"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	if _, ok := decodeEvent([]byte(`{"type":"EVENT","event":"dance"}`)); ok {
		t.Fatal("expected unknown event to be dropped")
	}
	if _, ok := decodeEvent([]byte(`{"type":"HELLO"}`)); ok {
		t.Fatal("expected non-event to be dropped")
	}
	ev, ok := decodeEvent([]byte(`{"type":"EVENT","event":"ledger_input","field_id":" spent-xp ","text":"+5"}`))
	if !ok || ev.FieldID != "spent-xp" || ev.Text != "+5" {
		t.Fatalf("event = %+v, %v; want ledger input on spent-xp", ev, ok)
	}
}
