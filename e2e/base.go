package e2e

import (
	"bytes"
	"channel-chat/app"
	"channel-chat/internal"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config  Config
	baseURL string

	db     *badger.DB
	app    *app.App
	server *httptest.Server
	cancel context.CancelFunc
	done   chan struct{}
}

// SetupSuite loads the environment configuration and boots a server when
// none is provided.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr != "" {
		s.baseURL = strings.TrimRight(s.Config.ServerAddr, "/")
		return
	}

	s.db, err = badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.app, err = app.New(ctx, slog.Default(), internal.Config{
		JWTSecret:               s.Config.JWTSecret,
		AuthTokenDuration:       time.Hour,
		HistoryPageSize:         50,
		MaxContentLength:        2000,
		ConnectionBufferSize:    256,
		MaxFrameSize:            8192,
		AllowedOrigins:          "*",
		RateLimitBurst:          50,
		RateLimitRefillInterval: 100 * time.Millisecond,
		RestartInterval:         50 * time.Millisecond,
		MetricInterval:          time.Second,
	}, s.db)
	s.Require().NoError(err)

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.app.Run(ctx)
	}()
	s.server = httptest.NewServer(s.app.Handler)
	s.baseURL = s.server.URL
}

func (s *BaseSuite) TearDownSuite() {
	if s.app == nil {
		return
	}
	s.server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.NoError(s.app.Shutdown(ctx))
	s.cancel()
	<-s.done
	s.NoError(s.db.Close())
}

// Step prints a header for a scenario step.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call sends a JSON request and decodes the JSON answer into out when non nil.
func (s *BaseSuite) Call(method, path, token string, body, out any) int {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	request, err := http.NewRequest(method, s.baseURL+path, reader)
	s.Require().NoError(err)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	response, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	s.Require().NoError(err)
	s.T().Logf("HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))

	if out != nil && response.StatusCode < http.StatusBadRequest {
		s.Require().NoError(json.Unmarshal(data, out), string(data))
	}
	return response.StatusCode
}

type Account struct {
	ID    string
	Name  string
	Token string
}

// Register signs up and logs in a fresh user.
func (s *BaseSuite) Register(name string) Account {
	email := fmt.Sprintf("%s-%d@example.com", strings.ToLower(name), time.Now().UnixNano())
	password := "correct-horse-battery"
	s.Require().Equal(http.StatusOK, s.Call(http.MethodPost, "/signup", "",
		map[string]string{"name": name, "email": email, "password": password}, nil))

	var login struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	s.Require().Equal(http.StatusOK, s.Call(http.MethodPost, "/login", "",
		map[string]string{"email": email, "password": password}, &login))
	return Account{ID: login.User.ID, Name: login.User.Username, Token: login.Token}
}

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Peer is one WebSocket connection of an account.
type Peer struct {
	s       *BaseSuite
	conn    *websocket.Conn
	pending [][]byte
}

func (s *BaseSuite) Connect(account Account) *Peer {
	url := "ws" + strings.TrimPrefix(s.baseURL, "http") + "/ws?token=" + account.Token
	conn, response, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusSwitchingProtocols, response.StatusCode)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &Peer{s: s, conn: conn}
}

func (p *Peer) Send(event string, data any) {
	raw, err := json.Marshal(data)
	p.s.Require().NoError(err)
	p.s.Require().NoError(p.conn.WriteJSON(Envelope{Event: event, Data: raw}))
}

// Next returns the next event received within timeout.
func (p *Peer) Next(timeout time.Duration) (Envelope, error) {
	for len(p.pending) == 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		p.pending = bytes.Split(frame, []byte{'\n'})
	}
	line := p.pending[0]
	p.pending = p.pending[1:]
	var envelope Envelope
	err := json.Unmarshal(line, &envelope)
	return envelope, err
}

// Expect skips events until one named event arrives.
func (p *Peer) Expect(event string, into any) {
	for {
		envelope, err := p.Next(3 * time.Second)
		p.s.Require().NoError(err, "waiting for %s", event)
		if envelope.Event != event {
			continue
		}
		if into != nil {
			p.s.Require().NoError(json.Unmarshal(envelope.Data, into))
		}
		return
	}
}

// Silent reports whether no event named event arrives within timeout.
// The connection must not be read again afterwards.
func (p *Peer) Silent(event string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		envelope, err := p.Next(remaining)
		if err != nil {
			return true
		}
		if envelope.Event == event {
			return false
		}
	}
}
