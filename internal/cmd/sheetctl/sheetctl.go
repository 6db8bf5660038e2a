// Package sheetctl drives a sheet server from line commands over websocket.
package sheetctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	entrypoint "github.com/louisbranch/charsheet/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/charsheet/internal/platform/grpc"
	"github.com/louisbranch/charsheet/internal/platform/timeouts"
	"github.com/louisbranch/charsheet/internal/services/sheet/api/ws"
	sheetserver "github.com/louisbranch/charsheet/internal/services/sheet/app"
)

// Config holds sheetctl command configuration.
type Config struct {
	Addr       string        `env:"SHEETCTL_ADDR" envDefault:"localhost:8092"`
	HealthAddr string        `env:"SHEETCTL_HEALTH_ADDR" envDefault:"localhost:8093"`
	SheetID    string        `env:"SHEETCTL_SHEET" envDefault:"default"`
	Locale     string        `env:"SHEETCTL_LOCALE"`
	Script     string        `env:"SHEETCTL_SCRIPT"`
	WaitHealth bool          `env:"SHEETCTL_WAIT_HEALTH"`
	Timeout    time.Duration `env:"SHEETCTL_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "sheet server websocket address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "sheet server gRPC health address")
	fs.StringVar(&cfg.SheetID, "sheet", cfg.SheetID, "sheet id to open")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "message locale (server default when empty)")
	fs.StringVar(&cfg.Script, "script", cfg.Script, "command file (stdin when empty)")
	fs.BoolVar(&cfg.WaitHealth, "wait-health", cfg.WaitHealth, "wait for the server health check before connecting")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout per reply")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run connects to the sheet server and executes commands from the script, or
// from in when no script is configured.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.SocketWrite
	}
	logger := log.New(errOut, "", 0)

	if strings.TrimSpace(cfg.Script) != "" {
		f, err := os.Open(cfg.Script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}
	if in == nil {
		return errors.New("command input is required")
	}

	if cfg.WaitHealth {
		conn, err := platformgrpc.DialWithHealth(ctx, nil, cfg.HealthAddr, sheetserver.HealthService, timeouts.GRPCDial, logger.Printf, platformgrpc.DefaultClientDialOptions()...)
		if err != nil {
			return fmt.Errorf("wait for sheet server: %w", err)
		}
		_ = conn.Close()
	}

	c, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.send(ws.HelloMsg{Type: ws.TypeHello, ProtocolVersion: ws.ProtocolVersion, SheetID: cfg.SheetID, Locale: cfg.Locale}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	if err := c.reply(out); err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}

	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := ParseCommand(scanner.Text())
		if errors.Is(err, errEmptyCommand) {
			continue
		}
		if err != nil {
			logger.Printf("line %d: %v", line, err)
			continue
		}
		switch cmd.Local {
		case "quit":
			return nil
		case "help":
			fmt.Fprintln(out, usage)
			continue
		case "health":
			if err := probe(ctx, cfg, out); err != nil {
				logger.Printf("line %d: %v", line, err)
			}
			continue
		}
		if err := c.send(cmd.Event); err != nil {
			return fmt.Errorf("line %d: send: %w", line, err)
		}
		if err := c.reply(out); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}

type client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func dial(ctx context.Context, cfg Config) (*client, error) {
	u := url.URL{Scheme: "ws", Host: cfg.Addr, Path: "/ws"}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &client{conn: conn, timeout: cfg.Timeout}, nil
}

func (c *client) send(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteJSON(v)
}

// reply waits for the single message answering the last request.
func (c *client) reply(out io.Writer) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return fmt.Errorf("server closed connection: %s", closeErr.Text)
		}
		return fmt.Errorf("read reply: %w", err)
	}
	return printMessage(out, b)
}

func (c *client) close() {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
}

func probe(ctx context.Context, cfg Config, out io.Writer) error {
	conn, err := platformgrpc.DialWithHealth(ctx, nil, cfg.HealthAddr, "", timeouts.GRPCDial, nil, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer conn.Close()
	status, err := platformgrpc.Probe(ctx, conn, sheetserver.HealthService)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "health: %s %s\n", sheetserver.HealthService, status)
	return nil
}
