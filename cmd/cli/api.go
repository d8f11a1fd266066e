package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"wuwaguides/pkg/models"
)

type tokenData struct {
	Token string `json:"token"`
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPI() *apiClient {
	return &apiClient{
		base: strings.TrimRight(flagAPI, "/"),
		http: &http.Client{Timeout: flagTimeout},
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, "", out)
}

func (c *apiClient) doJSON(ctx context.Context, method, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type eventStream struct {
	conn *websocket.Conn
}

func (c *apiClient) events() (*eventStream, error) {
	u, err := websocketURL(c.base, "/ws")
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", u, err)
	}
	return &eventStream{conn: conn}, nil
}

func (s *eventStream) Close() error { return s.conn.Close() }

// follow prints events of runID until that run finishes.
func (s *eventStream) follow(ctx context.Context, runID string, out io.Writer) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream: %w", err)
		}

		var ev models.RunEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.RunID != runID {
			continue
		}

		switch ev.Type {
		case models.EventCharacterCached:
			fmt.Fprintf(out, "  cached  %-20s %d\n", ev.Name, ev.CharacterID)
		case models.EventCharacterFailed:
			fmt.Fprintf(out, "  failed  %-20s %d: %s\n", ev.Name, ev.CharacterID, ev.Message)
		default:
			fmt.Fprintf(out, "%s: %s\n", ev.Type, ev.Message)
		}
		if ev.Type == models.EventRunFinished {
			return nil
		}
	}
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.wuwaguides-token.json"
	}
	return filepath.Join(home, ".wuwaguides", "token.json")
}

func saveToken(path, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	if td.Token == "" {
		return "", errors.New("token file is empty")
	}
	return td.Token, nil
}
