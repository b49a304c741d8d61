package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"journey-chat/internal/auth"
	"journey-chat/internal/chatclient"
	"journey-chat/internal/config"
)

func main() {
	cfg := config.LoadClient()
	var (
		apiURL  = flag.String("api", cfg.APIURL, "chat HTTP API base URL")
		wsURL   = flag.String("ws", cfg.SocketURL, "chat websocket URL")
		token   = flag.String("token", cfg.Token, "bearer token")
		secret  = flag.String("secret", "", "JWT secret used to mint a dev token when -token is empty")
		userID  = flag.Int("user", cfg.UserID, "your user id")
		peerID  = flag.Int("peer", 0, "user id to open a private room with")
		groupID = flag.Int("group", 0, "group id to open")
		timeout = flag.Duration("timeout", cfg.HistoryTimeout, "history and dial timeout")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(2)
	}
	if (*peerID > 0) == (*groupID > 0) {
		fmt.Fprintln(os.Stderr, "exactly one of --peer or --group is required")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tok, err := sessionToken(*token, *secret, *userID)
	if err != nil {
		logger.Error("no usable token", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := chatclient.NewSessionStore(chatclient.Session{UserID: *userID, Token: tok})
	api := chatclient.NewAPIClient(*apiURL, &http.Client{Timeout: *timeout}, sessions)
	directory := chatclient.NewDirectory(api, logger)
	live := chatclient.NewLiveChannel(chatclient.WebsocketDialer{
		URL:      *wsURL,
		Sessions: sessions,
		Dialer:   &websocket.Dialer{HandshakeTimeout: *timeout},
	}, directory, chatclient.LiveConfig{Logger: logger})
	timeline := chatclient.NewTimeline(live, chatclient.NewHistoryLoader(api, directory, *timeout), directory, sessions, chatclient.TimelineConfig{
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
	})
	rooms := chatclient.NewRoomIdentity(api, sessions)

	roomID, err := resolveRoom(ctx, rooms, *userID, *peerID, *groupID)
	if err != nil {
		logger.Error("resolve room failed", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := live.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("live channel stopped", "err", err)
		}
	}()

	p := newPrinter(os.Stdout, *userID)
	timeline.OnChange(p.render)
	if err := timeline.SetActiveRoom(ctx, roomID); err != nil {
		reportLoadError(os.Stderr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		inputLoop(ctx, os.Stdin, os.Stderr, timeline)
	}()

	<-ctx.Done()
	logger.Info("shutting down client")
}

// sessionToken returns token, or mints one with secret for local development.
func sessionToken(token, secret string, userID int) (string, error) {
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}
	if secret == "" {
		return "", errors.New("set --token or --secret")
	}
	return auth.NewManager(secret, "journey-chat", 24*time.Hour).IssueToken(userID)
}

type roomResolver interface {
	ResolvePrivate(ctx context.Context, userA, userB int) (string, error)
	ResolveGroup(ctx context.Context, groupID int) (string, error)
}

func resolveRoom(ctx context.Context, rooms roomResolver, userID, peerID, groupID int) (string, error) {
	if groupID > 0 {
		return rooms.ResolveGroup(ctx, groupID)
	}
	return rooms.ResolvePrivate(ctx, userID, peerID)
}

type timelineOps interface {
	SendMessage(ctx context.Context, body string) (chatclient.Entry, error)
	Reload(ctx context.Context) error
}

func inputLoop(ctx context.Context, in io.Reader, errOut io.Writer, timeline timelineOps) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(errOut, "Type messages and press Enter to send. /reload refetches history, /quit exits.")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/reload":
			if err := timeline.Reload(ctx); err != nil {
				reportLoadError(errOut, err)
			}
			continue
		}
		if _, err := timeline.SendMessage(ctx, line); err != nil {
			fmt.Fprintf(errOut, "send error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(errOut, "input error: %v\n", err)
	}
}

func reportLoadError(w io.Writer, err error) {
	switch {
	case chatclient.IsTransient(err):
		fmt.Fprintf(w, "[system] history unavailable, type /reload to retry: %v\n", err)
	case errors.Is(err, chatclient.ErrNotFound):
		fmt.Fprintln(w, "[system] conversation not found")
	default:
		fmt.Fprintf(w, "[system] %v\n", err)
	}
}

// printer writes each timeline entry once, plus a notice when a pending
// message fails.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	self   int
	seen   map[string]bool
	failed map[string]bool
}

func newPrinter(out io.Writer, self int) *printer {
	return &printer{out: out, self: self, seen: make(map[string]bool), failed: make(map[string]bool)}
}

func (p *printer) render(entries []chatclient.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		id := entryID(e)
		if !p.seen[id] {
			p.seen[id] = true
			name := e.Display.Name
			if e.AuthorID == p.self {
				name = "me"
			}
			fmt.Fprintf(p.out, "[%s][%s] %s\n", name, e.Clock(), e.Body)
		}
		if e.Failed && !p.failed[id] {
			p.failed[id] = true
			fmt.Fprintf(p.out, "[system] not delivered: %s\n", e.Body)
		}
	}
}

func entryID(e chatclient.Entry) string {
	if e.ClientNonce != "" {
		return "n:" + e.ClientNonce
	}
	if e.ID != 0 {
		return fmt.Sprintf("id:%d", e.ID)
	}
	k := e.Key()
	return fmt.Sprintf("k:%d:%d:%s", k.AuthorID, k.Second, k.Body)
}
