package sheetctl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/charsheet/internal/services/sheet/api/ws"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
)

// Command is one parsed script line.
type Command struct {
	// Event is sent to the server. Nil for local commands.
	Event *ws.EventMsg
	// Local names a command handled by the client itself: health, quit.
	Local string
}

var errEmptyCommand = errors.New("empty command")

const usage = `commands:
  focus <field>          start editing a field
  type <field> <text>    type an expression into a field
  enter <field>          press Enter in a field
  escape <field>         press Escape in a field
  blur <field>           leave a field
  click                  click outside any field
  confirm                confirm the open preview
  cancel [field]         discard the open preview
  xp <current|spent> <text>
                         edit the XP ledger
  show                   print the committed sheet
  health                 probe the server health endpoint
  quit                   close the connection`

// ParseCommand parses one script line. Blank lines and lines starting with #
// yield errEmptyCommand.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Command{}, errEmptyCommand
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	field, text, _ := strings.Cut(rest, " ")
	text = strings.TrimSpace(text)

	event := func(kind string) *ws.EventMsg {
		return &ws.EventMsg{Type: ws.TypeEvent, Event: kind}
	}
	requireField := func() error {
		if field == "" {
			return fmt.Errorf("%s: field id is required", name)
		}
		return nil
	}

	switch strings.ToLower(name) {
	case "focus", "blur":
		if err := requireField(); err != nil {
			return Command{}, err
		}
		ev := event(strings.ToLower(name))
		ev.FieldID = field
		return Command{Event: ev}, nil
	case "type", "input":
		if err := requireField(); err != nil {
			return Command{}, err
		}
		ev := event("input")
		ev.FieldID = field
		ev.Text = text
		return Command{Event: ev}, nil
	case "enter", "escape":
		if err := requireField(); err != nil {
			return Command{}, err
		}
		ev := event("key")
		ev.FieldID = field
		ev.Key = "Enter"
		if strings.EqualFold(name, "escape") {
			ev.Key = "Escape"
		}
		return Command{Event: ev}, nil
	case "click", "outside":
		return Command{Event: event("outside")}, nil
	case "confirm":
		return Command{Event: event("confirm")}, nil
	case "cancel":
		ev := event("cancel")
		ev.FieldID = field
		return Command{Event: ev}, nil
	case "xp":
		fieldID, err := ledgerFieldID(field)
		if err != nil {
			return Command{}, err
		}
		ev := event("ledger_input")
		ev.FieldID = fieldID
		ev.Text = text
		return Command{Event: ev}, nil
	case "show":
		return Command{Event: event("snapshot")}, nil
	case "health", "quit":
		return Command{Local: strings.ToLower(name)}, nil
	case "help":
		return Command{Local: "help"}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
}

func ledgerFieldID(name string) (string, error) {
	switch strings.ToLower(name) {
	case "current", advancement.FieldCurrentXP:
		return advancement.FieldCurrentXP, nil
	case "spent", advancement.FieldSpentXP:
		return advancement.FieldSpentXP, nil
	case "":
		return "", errors.New("xp: ledger field is required (current or spent)")
	default:
		return "", fmt.Errorf("xp: unknown ledger field %q", name)
	}
}
