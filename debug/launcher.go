package debug

// This file contains the launchers starting a debug session from a composed
// configuration.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-dap"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
)

// Launcher starts a debug session.
type Launcher interface {
	Launch(ctx context.Context, cfg model.DebugLaunchConfig) error
}

// PrintLauncher writes the configuration as JSON, for editors and scripts
// that start the session themselves.
type PrintLauncher struct {
	Out io.Writer
}

func (l PrintLauncher) Launch(ctx context.Context, cfg model.DebugLaunchConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal launch configuration: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.Out.Write(data); err != nil {
		return fmt.Errorf("failed to write launch configuration: %w", err)
	}
	return nil
}

// DAPLauncher starts the session on a debug adapter listening on a TCP
// address: initialize, launch with the configuration as arguments, and
// configurationDone once the adapter is initialized.
type DAPLauncher struct {
	logger  zerolog.Logger
	Address string
	Timeout time.Duration
}

func NewDAPLauncher(logger zerolog.Logger, address string) *DAPLauncher {
	return &DAPLauncher{logger: logger, Address: address, Timeout: 30 * time.Second}
}

func (l *DAPLauncher) Launch(ctx context.Context, cfg model.DebugLaunchConfig) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", l.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to debug adapter at %s: %w", l.Address, err)
	}
	defer conn.Close()

	if l.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(l.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s := &dapSession{logger: l.logger, conn: conn, r: bufio.NewReader(conn)}
	return s.launch(cfg)
}

type dapSession struct {
	logger zerolog.Logger
	conn   io.Writer
	r      *bufio.Reader
	seq    int
}

func (s *dapSession) request(command string) dap.Request {
	s.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.seq, Type: "request"},
		Command:         command,
	}
}

func (s *dapSession) send(msg dap.Message) error {
	if err := dap.WriteProtocolMessage(s.conn, msg); err != nil {
		return fmt.Errorf("failed to send to debug adapter: %w", err)
	}
	return nil
}

// read returns the next message the library knows, skipping adapter
// specific events and responses.
func (s *dapSession) read() (dap.Message, error) {
	for {
		data, err := dap.ReadBaseMessage(s.r)
		if err != nil {
			return nil, fmt.Errorf("failed to read from debug adapter: %w", err)
		}
		msg, err := dap.DecodeProtocolMessage(data)
		var fieldErr *dap.DecodeProtocolMessageFieldError
		if errors.As(err, &fieldErr) {
			s.logger.Debug().Err(err).Msg("Skipping unknown debug adapter message")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode debug adapter message: %w", err)
		}
		return msg, nil
	}
}

func (s *dapSession) launch(cfg model.DebugLaunchConfig) error {
	err := s.send(&dap.InitializeRequest{
		Request: s.request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:        "cmaketest",
			ClientName:      "cmaketest",
			AdapterID:       cfg.Type,
			PathFormat:      "path",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
		},
	})
	if err != nil {
		return err
	}

	args, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal launch configuration: %w", err)
	}

	var (
		launchSent    bool
		launched      bool
		configured    bool
		configureSent bool
	)
	for !launched || !configured {
		msg, err := s.read()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *dap.InitializeResponse:
			if !m.Success {
				return fmt.Errorf("debug adapter refused initialize: %s", m.Message)
			}
			if launchSent {
				continue
			}
			launchSent = true
			if err := s.send(&dap.LaunchRequest{Request: s.request("launch"), Arguments: args}); err != nil {
				return err
			}
		case *dap.InitializedEvent:
			if configureSent {
				continue
			}
			configureSent = true
			if err := s.send(&dap.ConfigurationDoneRequest{Request: s.request("configurationDone")}); err != nil {
				return err
			}
		case *dap.LaunchResponse:
			if !m.Success {
				return fmt.Errorf("debug adapter refused launch: %s", m.Message)
			}
			launched = true
		case *dap.ConfigurationDoneResponse:
			if !m.Success {
				return fmt.Errorf("debug adapter refused configurationDone: %s", m.Message)
			}
			configured = true
		case *dap.ErrorResponse:
			detail := m.Message
			if m.Body.Error != nil {
				detail = m.Body.Error.Format
			}
			return fmt.Errorf("debug adapter failed %s: %s", m.Command, detail)
		case *dap.OutputEvent:
			s.logger.Debug().Str("category", m.Body.Category).Msg(m.Body.Output)
		default:
			s.logger.Debug().Str("message", fmt.Sprintf("%T", msg)).Msg("Ignoring debug adapter message")
		}
	}

	s.logger.Info().Str("program", cfg.Program).Msg("Debug session started")
	return nil
}
