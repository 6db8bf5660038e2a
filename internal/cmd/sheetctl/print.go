package sheetctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/charsheet/internal/services/sheet/api/ws"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

// printMessage renders one server message as human-readable lines.
func printMessage(out io.Writer, b []byte) error {
	base, err := ws.DecodeBase(b)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch base.Type {
	case ws.TypeWelcome:
		var msg ws.WelcomeMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		fmt.Fprintf(out, "opened %s (locale %s)\n", msg.Sheet.ID, msg.Locale)
		printSheet(out, msg.Sheet)
	case ws.TypeUpdate:
		var msg ws.UpdateMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return fmt.Errorf("decode update: %w", err)
		}
		printUpdate(out, msg)
	case ws.TypeError:
		var msg ws.ErrorMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		fmt.Fprintf(out, "error %s\n", formatError(&msg))
	default:
		fmt.Fprintf(out, "%s\n", b)
	}
	return nil
}

func printUpdate(out io.Writer, msg ws.UpdateMsg) {
	if msg.Error != nil {
		fmt.Fprintf(out, "%s: error %s\n", msg.Event, formatError(msg.Error))
	}
	if p := msg.Preview; p != nil {
		fmt.Fprintf(out, "%s: %s -> %d, final %d, xp %d/%d/%d", p.FieldID, p.Label, p.NewSteps, p.Final, p.CurrentXP, p.SpentXP, p.TotalXP)
		if !p.Confirmable {
			fmt.Fprint(out, " (not confirmable)")
		}
		fmt.Fprintln(out)
	}
	if msg.Hidden && msg.Preview == nil {
		fmt.Fprintf(out, "%s: preview hidden\n", msg.Event)
	}
	if r := msg.Restored; r != nil {
		fmt.Fprintf(out, "%s: restored %q\n", r.FieldID, r.RawText)
	}
	if msg.Committed != "" {
		fmt.Fprintf(out, "%s: committed\n", msg.Committed)
	}
	if msg.Sheet != nil {
		printSheet(out, *msg.Sheet)
	}
	if msg.Error == nil && msg.Preview == nil && !msg.Hidden && msg.Restored == nil && msg.Committed == "" && msg.Sheet == nil {
		fmt.Fprintf(out, "%s: %s\n", msg.Event, msg.State)
	}
}

func printSheet(out io.Writer, snap sheet.Snapshot) {
	for _, f := range snap.Fields {
		fmt.Fprintf(out, "  %-22s %-14s steps %-3d final %d\n", f.ID, f.Kind, f.Steps, f.Final)
	}
	if l := snap.Ledger; l != nil {
		fmt.Fprintf(out, "  xp current %d spent %d total %d\n", l.CurrentXP, l.SpentXP, l.TotalXP)
	}
}

func formatError(msg *ws.ErrorMsg) string {
	var b strings.Builder
	for e := msg; e != nil; e = e.Reason {
		if e != msg {
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%s %s", e.Code, e.Message)
	}
	return b.String()
}
