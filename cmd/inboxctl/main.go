// Package main is a small CLI for inspecting the inbox from a terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaymesh/whatsapp-inbox/pkg/chatclient"
)

func main() {
	apiFlag := flag.String("api", "http://localhost:4000", "inbox API base URL")
	selfFlag := flag.String("self", "918329446654", "operator phone number")
	tokenFlag := flag.String("token", "", "bearer token for authenticated deployments")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	intervalFlag := flag.Duration("interval", 30*time.Second, "refresh interval for watch")
	flag.Parse()

	var opts []chatclient.ClientOption
	if *tokenFlag != "" {
		opts = append(opts, chatclient.WithToken(*tokenFlag))
	}
	client := chatclient.NewClient(*apiFlag, opts...)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		cmdList(ctx, client, *selfFlag, *jsonFlag)
	case "show":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: inboxctl show <conversation-id>")
			os.Exit(1)
		}
		cmdShow(ctx, client, args[1], *jsonFlag)
	case "watch":
		cmdWatch(client, *selfFlag, *intervalFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--api <url>] [--self <phone>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  list                  list chats")
	fmt.Fprintln(os.Stderr, "  show <conversation>   show one conversation")
	fmt.Fprintln(os.Stderr, "  watch                 refresh and print chats periodically")
}

func cmdList(ctx context.Context, client *chatclient.Client, self string, asJSON bool) {
	inbox := chatclient.NewInbox(client, self)
	if err := inbox.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printChats(inbox.Chats(), asJSON)
}

func cmdShow(ctx context.Context, client *chatclient.Client, id string, asJSON bool) {
	conv, err := client.Conversation(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(conv)
		return
	}
	fmt.Printf("conversation %s (%d messages)\n", conv.ID, len(conv.Messages))
	for _, m := range conv.Messages {
		fmt.Printf("  [%s] %s %s: %s\n", m.Status, m.Timestamp.Local().Format("15:04"), m.From, m.Body)
	}
}

func cmdWatch(client *chatclient.Client, self string, interval time.Duration) {
	inbox := chatclient.NewInbox(client, self, chatclient.WithRefreshInterval(interval))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := inbox.Err(); err != nil {
					fmt.Fprintf(os.Stderr, "refresh error: %v\n", err)
					continue
				}
				printChats(inbox.Chats(), false)
			}
		}
	}()

	if err := inbox.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printChats(chats []chatclient.Chat, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(chats)
		return
	}
	for _, chat := range chats {
		unread := ""
		if chat.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", chat.UnreadCount)
		}
		last := "-"
		if n := len(chat.Messages); n > 0 {
			last = chat.Messages[n-1].Text
		}
		fmt.Printf("%-16s %-20s%s\n    %s\n", chat.User.ID, chat.User.Name, unread, last)
	}
}
