package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sonicspectrum/msghub/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run opens two sockets, sends one message on the first and expects it on
// both, then checks it is listed by the history endpoint.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	sender := flag.String("from", "", "existing sender user id")
	receiver := flag.String("to", "", "existing receiver user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *sender == "" || *receiver == "" {
		return fmt.Errorf("-from and -to are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	first, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer first.Close(websocket.StatusNormalClosure, "bye")

	second, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial second: %w", err)
	}
	defer second.Close(websocket.StatusNormalClosure, "bye")

	// Registration happens right after the handshake; give it a moment.
	time.Sleep(100 * time.Millisecond)

	content := *text
	if err := wsjson.Write(ctx, first, proto.Inbound{SenderID: *sender, ReceiverID: *receiver, Content: &content}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var got proto.Outbound
	for i, conn := range []*websocket.Conn{first, second} {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read on socket %d: %w", i+1, err)
		}
		fmt.Printf("socket %d: id=%s %s -> %s %q at %s\n", i+1, out.MessageID, out.SenderID, out.ReceiverID, out.Content, out.CreatedTime)
		got = out
	}

	return checkHistory(ctx, *addr, got)
}

func checkHistory(ctx context.Context, wsAddr string, want proto.Outbound) error {
	u, err := url.Parse(wsAddr)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/api/messages/" + url.PathEscape(want.ReceiverID) + "/" + url.PathEscape(want.SenderID)
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history: status %d", resp.StatusCode)
	}
	var history []proto.Outbound
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	if len(history) == 0 || history[0].MessageID != want.MessageID {
		return fmt.Errorf("message %s is not the newest in history", want.MessageID)
	}
	fmt.Printf("history: %d messages, newest is %s\n", len(history), history[0].MessageID)
	return nil
}
