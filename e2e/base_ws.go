package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"messenger-lab/auth"
)

// BaseWsSuite provides the shared plumbing of the end-to-end scenarios:
// config loading, token minting, WebSocket dialing and frame reading
// against a running server. Scenarios are skipped when no server is
// reachable at SERVER_ADDR.
type BaseWsSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenService
}

func (s *BaseWsSuite) SetupSuite() {
	cfg, err := LoadConfig()
	s.Require().NoError(err)
	s.Config = cfg

	conn, err := net.DialTimeout("tcp", cfg.ServerAddr, 2*time.Second)
	if err != nil {
		s.T().Skipf("No server reachable at %s: %v", cfg.ServerAddr, err)
	}
	_ = conn.Close()

	s.tokens = auth.NewTokenService(cfg.TokenSecret)
}

// Token mints a short-lived identity token the way the upstream identity
// service would.
func (s *BaseWsSuite) Token(userID string) string {
	token, err := s.tokens.Generate(userID, time.Hour)
	s.Require().NoError(err)
	return token
}

// Dial opens an authenticated WebSocket session for userID and registers
// its cleanup.
func (s *BaseWsSuite) Dial(userID string) *websocket.Conn {
	url := fmt.Sprintf("ws://%s/ws?token=%s", s.Config.ServerAddr, s.Token(userID))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to open session for %s", userID)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WriteFrame sends one frame on the connection.
func (s *BaseWsSuite) WriteFrame(conn *websocket.Conn, frameType string, payload any) {
	raw, err := json.Marshal(payload)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(frame{Type: frameType, Payload: raw}))
}

// ReadFrame reads frames until one of the wanted type arrives, skipping
// unrelated traffic (presence churn from other suites, typing blips).
func (s *BaseWsSuite) ReadFrame(conn *websocket.Conn, wantType string, timeout time.Duration) json.RawMessage {
	deadline := time.Now().Add(timeout)
	s.Require().NoError(conn.SetReadDeadline(deadline))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for time.Now().Before(deadline) {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "Connection died waiting for %q", wantType)

		var f frame
		s.Require().NoError(json.Unmarshal(raw, &f))
		if s.Config.DebugJSON {
			s.T().Logf("<- %s %s", f.Type, string(f.Payload))
		}
		if f.Type == wantType {
			return f.Payload
		}
	}
	s.FailNowf("Timed out", "No %q frame within %s", wantType, timeout)
	return nil
}

// HTTP performs an authenticated REST call and decodes the JSON response
// into out (when out is non-nil).
func (s *BaseWsSuite) HTTP(method, path, userID string, body, out any) int {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := fmt.Sprintf("http://%s%s", s.Config.ServerAddr, path)
	req, err := http.NewRequest(method, url, reader)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.Token(userID))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
