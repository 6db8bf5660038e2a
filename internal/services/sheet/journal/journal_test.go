package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/preview"
)

func TestRecordAndRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "commits")
	w.now = func() time.Time { return time.Date(2026, time.March, 3, 21, 0, 0, 0, time.UTC) }

	commits := []preview.Commit{
		{
			SheetID: "hero",
			FieldID: "strength-a",
			Kind:    advancement.KindCharacteristic,
			From:    5,
			To:      7,
			XPDelta: 60,
			Before:  advancement.Ledger{CurrentXP: 100, SpentXP: 100},
			After:   advancement.Ledger{CurrentXP: 40, SpentXP: 160},
		},
		{
			SheetID: "hero",
			FieldID: advancement.FieldCurrentXP,
			From:    40,
			To:      90,
			XPDelta: -50,
			Before:  advancement.Ledger{CurrentXP: 40, SpentXP: 160},
			After:   advancement.Ledger{CurrentXP: 90, SpentXP: 160},
		},
	}
	for _, commit := range commits {
		if err := w.Record(context.Background(), commit); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := ReadFile(w.PathForDay("2026-03-03"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []Entry{
		{
			Time:    time.Date(2026, time.March, 3, 21, 0, 0, 0, time.UTC),
			SheetID: "hero",
			FieldID: "strength-a",
			Kind:    "characteristic",
			From:    5,
			To:      7,
			XPDelta: 60,
			Before:  LedgerValues{CurrentXP: 100, SpentXP: 100, TotalXP: 200},
			After:   LedgerValues{CurrentXP: 40, SpentXP: 160, TotalXP: 200},
		},
		{
			Time:    time.Date(2026, time.March, 3, 21, 0, 0, 0, time.UTC),
			SheetID: "hero",
			FieldID: "current-xp",
			From:    40,
			To:      90,
			XPDelta: -50,
			Before:  LedgerValues{CurrentXP: 40, SpentXP: 160, TotalXP: 200},
			After:   LedgerValues{CurrentXP: 90, SpentXP: 160, TotalXP: 250},
		},
	}
	if diff := cmp.Diff(want, entries, cmpopts.IgnoreFields(Entry{}, "ID")); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	for _, entry := range entries {
		if _, err := uuid.Parse(entry.ID); err != nil {
			t.Fatalf("entry id %q is not a uuid: %v", entry.ID, err)
		}
	}
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, time.March, 4, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewWriter(dir, "commits")
		if err := w.Write(Entry{ID: uuid.NewString(), Time: day, SheetID: "hero", FieldID: "lore-aug", To: i + 1}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	entries, err := ReadFile(NewWriter(dir, "commits").PathForDay("2026-03-04"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 || entries[1].To != 2 {
		t.Fatalf("entries = %+v, want two appended entries", entries)
	}
}

func TestWriterRotatesByDay(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "commits")
	for _, day := range []int{5, 6} {
		entry := Entry{ID: uuid.NewString(), Time: time.Date(2026, time.March, day, 12, 0, 0, 0, time.UTC), SheetID: "hero"}
		if err := w.Write(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, day := range []string{"2026-03-05", "2026-03-06"} {
		entries, err := ReadFile(w.PathForDay(day))
		if err != nil {
			t.Fatalf("read %s: %v", day, err)
		}
		if len(entries) != 1 {
			t.Fatalf("%s entries = %d, want 1", day, len(entries))
		}
	}
}

func TestRecordHonorsContext(t *testing.T) {
	w := NewWriter(t.TempDir(), "commits")
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Record(ctx, preview.Commit{SheetID: "hero"}); err == nil {
		t.Fatal("expected context error")
	}
}
