package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
)

const (
	// DefaultRecordChannelSize is the default buffer size for the incoming record channel.
	DefaultRecordChannelSize = 4096

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single record.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:4000"
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	RecordChannelSize int
	MaxLineSize       int
	Logger            logging.Logger
}

// Server listens for newline-delimited multiplexed records over TCP.
// Records from all connections share one channel; order is kept per
// connection only.
type Server struct {
	listener    net.Listener
	addr        string
	records     chan model.SourceRecord
	maxLineSize int
	log         logging.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	channelSize := DefaultRecordChannelSize
	maxLineSize := DefaultMaxLineSize
	var log logging.Logger
	if len(conf) > 0 {
		if conf[0].RecordChannelSize > 0 {
			channelSize = conf[0].RecordChannelSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		log = conf[0].Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		records:     make(chan model.SourceRecord, channelSize),
		maxLineSize: maxLineSize,
		log:         logging.OrNoop(log),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					if errors.Is(err, net.ErrClosed) {
						return
					}
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	s.log.Info("tcpserver: listening", logging.String("addr", s.Addr()))
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server stops.
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLineSize)

	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		record := make([]byte, len(b))
		copy(record, b)
		select {
		case s.records <- model.SourceRecord{Source: "tcp", Record: record}:
		case <-s.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.log.Warn("tcpserver: dropped connection, record exceeds max size",
				logging.String("remote", conn.RemoteAddr().String()), logging.Int("max_line_size", s.maxLineSize))
			return
		}
		if s.ctx.Err() == nil {
			s.log.Warn("tcpserver: scanner error",
				logging.String("remote", conn.RemoteAddr().String()), logging.Err(err))
		}
	}
}

// Stop gracefully shuts down the TCP server and closes the record channel.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		close(s.records)
	})
	return nil
}

// Records returns the channel of received records.
func (s *Server) Records() <-chan model.SourceRecord {
	return s.records
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
