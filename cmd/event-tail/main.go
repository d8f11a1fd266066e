// Command event-tail prints pipeline run events from the API server's TCP
// event stream, reconnecting whenever the connection drops.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"wuwaguides/pkg/logging"
	"wuwaguides/pkg/models"
	"wuwaguides/pkg/utils"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP event stream address")
	raw := flag.Bool("raw", false, "print JSON lines as received")
	flag.Parse()

	logger, err := logging.New(utils.LogConfig{Level: "info", Development: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for ctx.Err() == nil {
		if err := tail(ctx, *addr, *raw, os.Stdout); err != nil && ctx.Err() == nil {
			logger.Warn("disconnected", zap.String("addr", *addr), zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

func tail(ctx context.Context, addr string, raw bool, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		if raw {
			fmt.Fprintln(out, sc.Text())
			continue
		}
		var ev models.RunEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil || ev.RunID == "" {
			// welcome line or something we do not know
			fmt.Fprintln(out, sc.Text())
			continue
		}
		fmt.Fprintln(out, formatEvent(ev))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("connection closed by server")
}

func formatEvent(ev models.RunEvent) string {
	ts := ev.At.Format(time.TimeOnly)
	switch ev.Type {
	case models.EventCharacterCached, models.EventCharacterFailed:
		s := fmt.Sprintf("%s %s %-17s %s (%d)", ts, shortID(ev.RunID), ev.Type, ev.Name, ev.CharacterID)
		if ev.Message != "" {
			s += ": " + ev.Message
		}
		return s
	default:
		return fmt.Sprintf("%s %s %-17s %s", ts, shortID(ev.RunID), ev.Type, ev.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
