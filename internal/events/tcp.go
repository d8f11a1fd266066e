package events

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// TCPServer streams run events as JSON lines to plain TCP clients, for tools
// that would rather not speak websocket.
type TCPServer struct {
	Addr string
	Hub  *Hub
}

func NewTCPServer(addr string, hub *Hub) *TCPServer {
	return &TCPServer{Addr: addr, Hub: hub}
}

// Run accepts clients until ctx is done.
func (s *TCPServer) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	log := s.Hub.logger.With(zap.String("addr", ln.Addr().String()))
	log.Info("tcp event stream listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("accept", zap.Error(err))
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_, _ = conn.Write([]byte(`{"type":"welcome","transport":"tcp"}` + "\n"))
		s.Hub.AddTCP(conn)
		log.Debug("client connected", zap.String("remote", conn.RemoteAddr().String()))

		go func(c net.Conn) {
			defer s.Hub.RemoveTCP(c)
			sc := bufio.NewScanner(c)
			for sc.Scan() {
				// anything the client sends is ignored
			}
		}(conn)
	}
}
