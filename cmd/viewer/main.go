package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"messenger-lab/domain"
	"messenger-lab/outbox"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the viewer-side environment variables.
type Config struct {
	ServerURL   string        `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	Token       string        `env:"CHAT_TOKEN,required=true"`
	UserID      string        `env:"CHAT_USER_ID,required=true"`
	ChatID      string        `env:"CHAT_ID,required=true"`
	LogLevel    string        `env:"LOG_LEVEL,default=INFO"`
	AckTimeout  time.Duration `env:"ACK_TIMEOUT,default=30s"`
	MatchWindow time.Duration `env:"MATCH_WINDOW,default=15s"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Viewer error: %v\n", err)
	}
	os.Exit(code)
}

// frame mirrors the server's wire envelope. The viewer keeps its own
// payload structs; the wire contract is the JSON shape, not the types.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wirePayload struct {
	ServerID      string `json:"server_id"`
	ChatID        string `json:"chat_id"`
	SenderID      string `json:"sender_id"`
	UserID        string `json:"user_id"`
	Body          string `json:"body"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id"`
	Reason        string `json:"reason"`
	CreatedAt     string `json:"created_at"`
	IsOnline      bool   `json:"is_online"`
	IsTyping      bool   `json:"is_typing"`
}

// wsTransmitter sends submissions over the live socket. One path only:
// if the socket write fails, the outbox flips the entry to failed, and a
// retry is a brand-new submission.
type wsTransmitter struct {
	conn *websocket.Conn
}

func (t *wsTransmitter) Transmit(cmd domain.SubmitMessage) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":        cmd.ChatID,
		"body":           cmd.Body,
		"kind":           string(cmd.Kind),
		"correlation_id": cmd.CorrelationID,
	})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(frame{Type: "submit_message", Payload: payload})
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, raw)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("%s?token=%s", config.ServerURL, config.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	box := outbox.NewOutbox(log, config.UserID, &wsTransmitter{conn: conn},
		config.MatchWindow, config.AckTimeout)
	go func() {
		_ = outbox.NewWatchdog(log, box, time.Second).Run(ctx)
	}()

	go receiveLoop(conn, box, config.UserID)

	color.Green.Printf(">>> Connected as %s in chat %s (/history, /quit)\n",
		config.UserID, config.ChatID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping viewer...")
			return exitOK, nil
		default:
		}
		if !scanner.Scan() {
			return exitOK, scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return exitOK, nil
		case line == "/history":
			renderTimeline(box.Messages(config.ChatID))
		default:
			box.Submit(config.ChatID, line, domain.KindText)
		}
	}
}

func receiveLoop(conn *websocket.Conn, box *outbox.Outbox, selfID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			color.Red.Println("Connection lost")
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		var p wirePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			continue
		}

		switch f.Type {
		case "message_ack":
			serverID, err := uuid.Parse(p.ServerID)
			if err != nil {
				continue
			}
			if err := box.OnAck(serverID, p.CorrelationID, parseTime(p.CreatedAt)); err == nil {
				color.Gray.Println("✓ sent")
			}
		case "message_error":
			if err := box.OnError(p.CorrelationID, p.Reason); err == nil {
				color.Red.Printf("✗ send failed: %s\n", p.Reason)
			}
		case "new_message":
			serverID, err := uuid.Parse(p.ServerID)
			if err != nil {
				continue
			}
			kind, _ := domain.ParseKind(p.Kind)
			box.OnIncoming(domain.Message{
				ID:            serverID,
				CorrelationID: p.CorrelationID,
				ChatID:        p.ChatID,
				SenderID:      p.SenderID,
				Body:          p.Body,
				Kind:          kind,
				CreatedAt:     parseTime(p.CreatedAt),
			})
			if p.SenderID != selfID {
				color.Cyan.Printf("[%s] %s\n", p.SenderID, p.Body)
			}
		case "presence_changed":
			state := "offline"
			if p.IsOnline {
				state = "online"
			}
			color.Yellow.Printf("* %s is now %s\n", p.UserID, state)
		case "user_typing":
			if p.IsTyping {
				color.Gray.Printf("* %s is typing...\n", p.UserID)
			}
		}
	}
}

func renderTimeline(messages []domain.Message) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Body", "State"})
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Format(time.TimeOnly),
			m.SenderID,
			m.Body,
			m.State.String(),
		})
	}
	table.Render()
}

func parseTime(raw string) time.Time {
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return at
}
