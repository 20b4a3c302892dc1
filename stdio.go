package lexmcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// StdIOServer implements the persistent single-connection transport: newline-delimited
// JSON-RPC messages over an io.Reader/io.Writer pair, typically stdin/stdout. One
// logical session spans the lifetime of the connection; it is created by the handshake
// and driven through the same Dispatcher as the HTTP transport. Messages are processed
// sequentially.
type StdIOServer struct {
	dispatcher *Dispatcher
	reader     io.Reader
	writer     io.Writer
	logger     *slog.Logger
}

// StdIOServerOption represents the options for the StdIOServer.
type StdIOServerOption func(*StdIOServer)

// NewStdIOServer creates a stdio transport reading messages from reader and writing
// replies to writer.
func NewStdIOServer(dispatcher *Dispatcher, reader io.Reader, writer io.Writer, options ...StdIOServerOption) *StdIOServer {
	s := &StdIOServer{
		dispatcher: dispatcher,
		reader:     reader,
		writer:     writer,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithStdIOServerLogger sets the logger for the transport.
func WithStdIOServerLogger(logger *slog.Logger) StdIOServerOption {
	return func(s *StdIOServer) {
		s.logger = logger.With(
			slog.String("component", "stdio"),
		)
	}
}

// Serve processes messages until the reader is exhausted or the context is cancelled.
// It returns nil on clean EOF.
func (s *StdIOServer) Serve(ctx context.Context) error {
	// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
	reader := bufio.NewReader(s.reader)

	var sess *Session

	for {
		type lineWithErr struct {
			line string
			err  error
		}

		lines := make(chan lineWithErr, 1)

		// Read on a goroutine so cancellation is observed even while blocked on a
		// slow reader.
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil {
				lines <- lineWithErr{err: err}
				return
			}
			lines <- lineWithErr{line: strings.TrimSuffix(line, "\n")}
		}()

		var lwe lineWithErr
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lwe = <-lines:
		}

		if lwe.err != nil {
			if errors.Is(lwe.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", lwe.err)
		}

		if lwe.line == "" {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal([]byte(lwe.line), &msg); err != nil {
			s.logger.Error("failed to unmarshal message", slog.String("err", err.Error()))
			continue
		}

		switch {
		case msg.Method != "" && msg.ID != "":
			reply, created := s.dispatcher.Dispatch(ctx, sess, msg)
			if created != nil {
				sess = created
			}
			if err := s.write(reply); err != nil {
				return err
			}
		case msg.Method != "":
			if sess == nil {
				s.logger.Warn("notification before handshake", slog.String("method", msg.Method))
				continue
			}
			s.dispatcher.HandleNotification(sess, msg)
		default:
			s.logger.Warn("ignoring inbound response message", slog.String("id", string(msg.ID)))
		}
	}
}

func (s *StdIOServer) write(msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// Append newline to maintain message framing protocol
	msgBs = append(msgBs, '\n')

	if _, err := s.writer.Write(msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
