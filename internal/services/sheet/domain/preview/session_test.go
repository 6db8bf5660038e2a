package preview

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

type fakeStorage struct {
	values map[string]string
	saves  int
	err    error
}

func (f *fakeStorage) Save(_ context.Context, key, value string) error {
	f.saves++
	if f.err != nil {
		return f.err
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

type fakeRecorder struct {
	commits []Commit
}

func (f *fakeRecorder) Record(_ context.Context, commit Commit) error {
	f.commits = append(f.commits, commit)
	return nil
}

func testTable(t *testing.T) *advancement.CostTable {
	t.Helper()
	table, err := advancement.NewCostTable([]advancement.CostBracket{
		{StepsFrom: 0, StepsTo: 5, CharacteristicCost: 25, SkillCost: 10},
		{StepsFrom: 6, StepsTo: 10, CharacteristicCost: 30, SkillCost: 15},
	})
	if err != nil {
		t.Fatalf("new cost table: %v", err)
	}
	return table
}

func testSheet(t *testing.T, ledger advancement.Ledger) *sheet.Sheet {
	t.Helper()
	sh := sheet.New("hero")
	fields := []sheet.Field{
		{ID: "strength-a", Kind: advancement.KindCharacteristic, RawText: "5", AuxID: "strength-i", Aux: 40, DisplayID: "current-strength"},
		{ID: "lore-aug", Kind: advancement.KindSkill, RawText: "1+1", AuxID: "lore-current", Aux: 12, DisplayID: "lore-final"},
	}
	for _, field := range fields {
		if err := sh.Register(field); err != nil {
			t.Fatalf("register %s: %v", field.ID, err)
		}
	}
	sh.BindLedger(ledger)
	return sh
}

func newTestSession(t *testing.T, ledger advancement.Ledger) (*Session, *fakeStorage, *fakeRecorder) {
	t.Helper()
	storage := &fakeStorage{}
	recorder := &fakeRecorder{}
	s := NewSession(testSheet(t, ledger), testTable(t), WithStorage(storage), WithRecorder(recorder))
	return s, storage, recorder
}

func TestEditPreviewsWithoutMutating(t *testing.T) {
	s, storage, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100, SpentXP: 100})

	update, err := s.Edit("strength-a", "+2")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if update.State != StatePreviewing || update.Pending == nil {
		t.Fatalf("update = %+v, want previewing", update)
	}
	if !update.Pending.Confirmable() || update.Pending.Transaction.Cost() != 60 {
		t.Fatalf("pending = %+v, want confirmable cost 60", update.Pending)
	}

	projection, ok := s.Projection()
	if !ok {
		t.Fatal("expected projection")
	}
	want := Projection{
		FieldID:     "strength-a",
		Direction:   advancement.DirectionAdvance,
		Cost:        60,
		NewSteps:    7,
		CurrentXP:   40,
		SpentXP:     160,
		TotalXP:     200,
		Final:       47,
		Confirmable: true,
	}
	if diff := cmp.Diff(want, projection); diff != "" {
		t.Fatalf("projection mismatch (-want +got):\n%s", diff)
	}

	field, _ := s.Sheet().Field("strength-a")
	if field.Steps != 5 || field.RawText != "5" {
		t.Fatalf("field mutated during preview: %+v", field)
	}
	ledger, _ := s.Sheet().Ledger()
	if ledger != (advancement.Ledger{CurrentXP: 100, SpentXP: 100}) {
		t.Fatalf("ledger mutated during preview: %+v", ledger)
	}
	if storage.saves != 0 {
		t.Fatalf("saves = %d, want 0", storage.saves)
	}
}

func TestConfirmCommitsAndPersists(t *testing.T) {
	s, storage, recorder := newTestSession(t, advancement.Ledger{CurrentXP: 100, SpentXP: 100})
	if _, err := s.Edit("strength-a", "+2"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	update, err := s.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if update.State != StateIdle || update.Committed == nil || update.Ledger == nil {
		t.Fatalf("update = %+v, want committed idle", update)
	}
	if _, ok := s.Pending(); ok {
		t.Fatal("pending edit survived confirm")
	}

	wantValues := map[string]string{
		"strength-a":       "7",
		"current-strength": "47",
		"current-xp":       "40",
		"spent-xp":         "160",
		"total-xp":         "200",
	}
	if diff := cmp.Diff(wantValues, storage.values); diff != "" {
		t.Fatalf("persisted values mismatch (-want +got):\n%s", diff)
	}
	if len(recorder.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(recorder.commits))
	}
	commit := recorder.commits[0]
	if commit.From != 5 || commit.To != 7 || commit.XPDelta != 60 {
		t.Fatalf("commit = %+v, want 5 -> 7 for 60", commit)
	}
}

func TestConfirmRefund(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100, SpentXP: 100})
	if _, err := s.Edit("strength-a", "+2"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if _, err := s.Edit("strength-a", "5"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	update, err := s.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if *update.Ledger != (advancement.Ledger{CurrentXP: 100, SpentXP: 100}) {
		t.Fatalf("ledger = %+v, want 100/100", *update.Ledger)
	}
}

func TestInsufficientXPStaysPreviewing(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 10})

	update, err := s.Edit("strength-a", "+1")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if update.State != StatePreviewing || update.Pending.Confirmable() {
		t.Fatalf("update = %+v, want non-confirmable preview", update)
	}
	needed, available, ok := advancement.InsufficientXPAmounts(update.Pending.Err)
	if !ok || needed != 30 || available != 10 {
		t.Fatalf("amounts = (%d, %d, %v), want (30, 10, true)", needed, available, ok)
	}

	_, err = s.Confirm(context.Background())
	if apperrors.GetCode(err) != apperrors.CodeEditNotConfirmable {
		t.Fatalf("Confirm code = %s, want %s", apperrors.GetCode(err), apperrors.CodeEditNotConfirmable)
	}
	if !errors.Is(err, apperrors.New(apperrors.CodeInsufficientXp, "")) {
		t.Fatalf("Confirm err = %v, want insufficient xp cause", err)
	}
	if s.State() != StatePreviewing {
		t.Fatalf("state = %s, want previewing", s.State())
	}
	field, _ := s.Sheet().Field("strength-a")
	if field.Steps != 5 {
		t.Fatalf("steps = %d, want 5", field.Steps)
	}
}

func TestInvalidExpressionThenCancelRestores(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.BeginEdit("lore-aug"); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	update, err := s.Edit("lore-aug", "abc")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !errors.Is(update.Pending.Err, advancement.ErrInvalidExpression) {
		t.Fatalf("pending err = %v, want invalid expression", update.Pending.Err)
	}

	update, err = s.Key(context.Background(), "lore-aug", KeyEnter)
	if err != nil {
		t.Fatalf("Key(Enter): %v", err)
	}
	if update.State != StatePreviewing {
		t.Fatalf("enter on invalid edit changed state to %s", update.State)
	}

	update, err = s.Key(context.Background(), "lore-aug", KeyEscape)
	if err != nil {
		t.Fatalf("Key(Escape): %v", err)
	}
	want := &Restored{FieldID: "lore-aug", RawText: "1+1", Steps: 2}
	if diff := cmp.Diff(want, update.Restored); diff != "" {
		t.Fatalf("restored mismatch (-want +got):\n%s", diff)
	}
	if focused, ok := s.Focused(); !ok || focused != "lore-aug" {
		t.Fatalf("focus = %q, %v; want lore-aug kept", focused, ok)
	}
}

func TestEnterConfirms(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.Edit("lore-aug", "4"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	update, err := s.Key(context.Background(), "lore-aug", KeyEnter)
	if err != nil {
		t.Fatalf("Key(Enter): %v", err)
	}
	if update.Committed == nil || update.Committed.Steps != 4 || update.Committed.Final() != 14 {
		t.Fatalf("committed = %+v, want steps 4 final 14", update.Committed)
	}
	if update.Ledger.CurrentXP != 80 || update.Ledger.SpentXP != 20 {
		t.Fatalf("ledger = %+v, want 80/20", update.Ledger)
	}
}

func TestBeginEditOnOtherFieldCancels(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.Edit("strength-a", "+1"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	update, err := s.BeginEdit("lore-aug")
	if err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	if update.Restored == nil || update.Restored.FieldID != "strength-a" {
		t.Fatalf("restored = %+v, want strength-a", update.Restored)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestEditBackToCommittedHides(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.Edit("lore-aug", "3"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	for _, text := range []string{"1+1", "  "} {
		if _, err := s.Edit("lore-aug", "3"); err != nil {
			t.Fatalf("Edit: %v", err)
		}
		update, err := s.Edit("lore-aug", text)
		if err != nil {
			t.Fatalf("Edit(%q): %v", text, err)
		}
		if !update.Hidden || update.State != StateIdle {
			t.Fatalf("Edit(%q) update = %+v, want hidden idle", text, update)
		}
	}
}

func TestBlurCancelsAndDropsFocus(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.Edit("lore-aug", "9"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	update, err := s.Blur("lore-aug")
	if err != nil {
		t.Fatalf("Blur: %v", err)
	}
	if update.Restored == nil {
		t.Fatal("expected restore on blur")
	}
	if _, ok := s.Focused(); ok {
		t.Fatal("focus survived blur")
	}
}

func TestOutsideInteractionCancels(t *testing.T) {
	s, _, recorder := newTestSession(t, advancement.Ledger{CurrentXP: 100})
	if _, err := s.Edit("strength-a", "6"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	update, err := s.OutsideInteraction()
	if err != nil {
		t.Fatalf("OutsideInteraction: %v", err)
	}
	if update.Restored == nil || update.Restored.Steps != 5 {
		t.Fatalf("restored = %+v, want steps 5", update.Restored)
	}
	if len(recorder.commits) != 0 {
		t.Fatalf("commits = %d, want 0", len(recorder.commits))
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{})
	_, err := s.Confirm(context.Background())
	if apperrors.GetCode(err) != apperrors.CodeNoPendingEdit {
		t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeNoPendingEdit)
	}
}

func TestUnknownField(t *testing.T) {
	s, _, _ := newTestSession(t, advancement.Ledger{})
	_, err := s.Edit("missing", "1")
	if apperrors.GetCode(err) != apperrors.CodeFieldNotFound {
		t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeFieldNotFound)
	}
}

func TestLedgerUnavailable(t *testing.T) {
	sh := sheet.New("hero")
	if err := sh.Register(sheet.Field{ID: "lore-aug", Kind: advancement.KindSkill}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := NewSession(sh, testTable(t))
	update, err := s.Edit("lore-aug", "2")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !errors.Is(update.Pending.Err, advancement.ErrLedgerUnavailable) {
		t.Fatalf("pending err = %v, want ledger unavailable", update.Pending.Err)
	}
}

func TestPersistenceFailureDoesNotBlockCommit(t *testing.T) {
	storage := &fakeStorage{err: errors.New("disk full")}
	s := NewSession(testSheet(t, advancement.Ledger{CurrentXP: 100}), testTable(t), WithStorage(storage))
	if _, err := s.Edit("lore-aug", "3"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	field, _ := s.Sheet().Field("lore-aug")
	if field.Steps != 3 {
		t.Fatalf("steps = %d, want 3", field.Steps)
	}
}

func TestEditLedger(t *testing.T) {
	s, storage, recorder := newTestSession(t, advancement.Ledger{CurrentXP: 50, SpentXP: 10})
	if _, err := s.Edit("lore-aug", "5"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	update, err := s.EditLedger(context.Background(), advancement.FieldSpentXP, "+20")
	if err != nil {
		t.Fatalf("EditLedger: %v", err)
	}
	if update.Restored == nil {
		t.Fatal("expected open preview to be cancelled")
	}
	if *update.Ledger != (advancement.Ledger{CurrentXP: 30, SpentXP: 30}) {
		t.Fatalf("ledger = %+v, want 30/30", *update.Ledger)
	}
	if storage.values["total-xp"] != "60" {
		t.Fatalf("total-xp = %q, want 60", storage.values["total-xp"])
	}
	if len(recorder.commits) != 1 || recorder.commits[0].FieldID != advancement.FieldSpentXP {
		t.Fatalf("commits = %+v, want one spent-xp commit", recorder.commits)
	}

	if _, err := s.EditLedger(context.Background(), advancement.FieldCurrentXP, "+70"); err != nil {
		t.Fatalf("EditLedger: %v", err)
	}
	ledger, _ := s.Sheet().Ledger()
	if ledger != (advancement.Ledger{CurrentXP: 100, SpentXP: 30}) {
		t.Fatalf("ledger = %+v, want 100/30", ledger)
	}
}

func TestEditLedgerRejections(t *testing.T) {
	s, storage, _ := newTestSession(t, advancement.Ledger{CurrentXP: 5, SpentXP: 10})
	tests := []struct {
		name    string
		fieldID string
		text    string
		code    apperrors.Code
	}{
		{name: "overspend", fieldID: advancement.FieldSpentXP, text: "+6", code: apperrors.CodeInsufficientXp},
		{name: "invalid", fieldID: advancement.FieldCurrentXP, text: "x", code: apperrors.CodeInvalidExpression},
		{name: "unknown", fieldID: "gold", text: "1", code: apperrors.CodeFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.EditLedger(context.Background(), tt.fieldID, tt.text)
			if apperrors.GetCode(err) != tt.code {
				t.Fatalf("code = %s, want %s", apperrors.GetCode(err), tt.code)
			}
		})
	}
	ledger, _ := s.Sheet().Ledger()
	if ledger != (advancement.Ledger{CurrentXP: 5, SpentXP: 10}) {
		t.Fatalf("ledger = %+v, want unchanged", ledger)
	}
	if storage.saves != 0 {
		t.Fatalf("saves = %d, want 0", storage.saves)
	}
}
