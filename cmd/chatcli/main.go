package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mbeoliero/kit/log"

	"github.com/deskhq/deskchat/api"
	"github.com/deskhq/deskchat/chat"
	"github.com/deskhq/deskchat/config"
	"github.com/deskhq/deskchat/credential"
	"github.com/deskhq/deskchat/ws"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "config file path")
		roomID     = flag.Int64("room", 0, "room id to join")
		userID     = flag.String("user", "", "current user id")
	)
	flag.Parse()

	ctx := context.TODO()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxWarn(ctx, "failed to load config, using defaults: %v", err)
		cfg = config.Default()
	}

	if *roomID == 0 || *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: chatcli -room <id> -user <id> [-config <path>]")
		os.Exit(2)
	}

	creds := credential.NewFileStore(cfg.Credential.File)
	apiClient := api.MustNewClient(cfg.Server.BaseURL, creds)

	room, err := apiClient.GetRoom(ctx, *roomID)
	if err != nil {
		log.CtxError(ctx, "failed to load room %d: %v", *roomID, err)
		panic(err)
	}
	fmt.Printf("== %s ==\n", room.DisplayName(*userID))

	mgr := chat.NewManager(cfg.WebSocket, cfg.Server.WSURL, creds, ws.NewDialer(cfg.WebSocket))

	out := &printer{}
	var session *chat.Session
	session = chat.NewSession(cfg.Chat, apiClient, mgr, *roomID, *userID, chat.Hooks{
		OnUpdate: func() {
			out.catchUp(session.Messages())
		},
		OnConnected: func() {
			fmt.Println("* connected")
		},
		OnDisconnected: func(err error) {
			fmt.Printf("* disconnected: %v\n", err)
		},
		OnTicketPrompt: func(msg *api.Message) {
			fmt.Printf("* ticket suggested from message %d\n", msg.ID)
		},
	})

	if err := session.Open(ctx); err != nil {
		log.CtxError(ctx, "failed to open session: %v", err)
		panic(err)
	}
	defer session.Close()

	go inputLoop(ctx, session)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down")
}

// printer prints messages appended since the last update. Older pages
// prepend, so only the tail needs printing.
type printer struct {
	mu      sync.Mutex
	printed map[int64]struct{}
}

func (p *printer) catchUp(msgs []*api.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed == nil {
		p.printed = make(map[int64]struct{})
	}
	for _, msg := range msgs {
		if _, ok := p.printed[msg.ID]; ok {
			continue
		}
		p.printed[msg.ID] = struct{}{}
		printMessage(msg)
	}
}

func inputLoop(ctx context.Context, session *chat.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			os.Exit(0)
		case line == "/older":
			grew, err := session.OnScrollNearTop(ctx)
			if err != nil {
				fmt.Printf("! history fetch failed: %v\n", err)
				continue
			}
			if !grew {
				fmt.Println("* no more history")
			}
		default:
			if err := session.Send(ctx, &api.SendMessageRequest{Content: line}); err != nil {
				fmt.Printf("! send failed: %v\n", err)
			}
		}
	}
}

func printMessage(msg *api.Message) {
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.SenderNickname, msg.Content)
}
