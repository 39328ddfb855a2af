// chat-cli is a terminal Connect chat client for development and smoke
// testing. It seeds its state from the REST API, binds a live WebSocket
// connection to the local state store, and re-renders the selected
// conversation whenever the store changes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/client"
	"github.com/connect/chat-app/internal/protocol"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "base URL of the chat REST API")
	wsURL := flag.String("ws", "ws://localhost:8080/ws", "WebSocket endpoint")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "access token (defaults to $CHAT_TOKEN)")
	selfID := flag.String("user", "", "own user id, used for rendering")
	flag.Parse()

	if *token == "" {
		log.Fatal("a token is required: pass -token or set CHAT_TOKEN")
	}

	store := chat.NewState()
	binding := client.NewBinding(*wsURL, store)
	rest := client.NewREST(*apiURL, *token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	rooms, err := rest.Rooms(ctx)
	cancel()
	if err != nil {
		log.Fatalf("failed to fetch rooms: %v", err)
	}
	store.SetRooms(rooms)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = binding.SetToken(ctx, *token)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer binding.ClearToken()

	store.SetOnChange(func() { render(store, *selfID) })

	fmt.Printf("connected — %d rooms. Commands: /rooms /open N /send text /reply N text /react N emoji /del N /read /leave /quit\n", len(rooms))
	printRooms(store, *selfID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		if err := handleCommand(line, store, binding, rest, *selfID); err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
}

func handleCommand(line string, store *chat.State, binding *client.Binding, rest *client.REST, selfID string) error {
	cmd, rest2 := line, ""
	if i := strings.IndexByte(line, ' '); i > 0 {
		cmd, rest2 = line[:i], strings.TrimSpace(line[i+1:])
	}

	c := binding.Client()
	if c == nil {
		return fmt.Errorf("not connected")
	}

	switch cmd {
	case "/rooms":
		printRooms(store, selfID)
		return nil

	case "/open":
		n, err := strconv.Atoi(rest2)
		if err != nil {
			return fmt.Errorf("usage: /open N")
		}
		rooms := store.Rooms()
		if n < 1 || n > len(rooms) {
			return fmt.Errorf("no room %d", n)
		}
		room := rooms[n-1]

		if prev, ok := store.Selected(); ok {
			_ = c.LeaveRoom(prev.ID)
		}
		store.SelectRoom(room)
		if err := c.JoinRoom(room.ID); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msgs, err := rest.Messages(ctx, room.ID, 50, 0)
		if err != nil {
			return err
		}
		store.SetMessages(msgs)
		return nil

	case "/send":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("open a room first")
		}
		if rest2 == "" {
			return fmt.Errorf("usage: /send text")
		}
		p := protocol.SendMessagePayload{
			ChatRoomID: room.ID,
			Type:       chat.MessageText,
			Content:    rest2,
		}
		if reply, ok := store.ReplyTo(); ok {
			p.ReplyTo = reply.ID
			store.ClearReplyTo()
		}
		return c.SendMessage(p)

	case "/reply":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("open a room first")
		}
		parts := strings.SplitN(rest2, " ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("usage: /reply N text")
		}
		msg, err := messageAt(store, parts[0])
		if err != nil {
			return err
		}
		return c.SendMessage(protocol.SendMessagePayload{
			ChatRoomID: room.ID,
			Type:       chat.MessageText,
			Content:    parts[1],
			ReplyTo:    msg.ID,
		})

	case "/react":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("open a room first")
		}
		parts := strings.SplitN(rest2, " ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("usage: /react N emoji")
		}
		msg, err := messageAt(store, parts[0])
		if err != nil {
			return err
		}
		return c.React(room.ID, msg.ID, parts[1])

	case "/del":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("open a room first")
		}
		msg, err := messageAt(store, rest2)
		if err != nil {
			return err
		}
		if !chat.CanDelete(msg, room, selfID) {
			return fmt.Errorf("cannot delete that message")
		}
		return c.DeleteMessage(room.ID, msg.ID)

	case "/read":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("open a room first")
		}
		msgs := store.Messages()
		if len(msgs) == 0 {
			return nil
		}
		return c.MarkRead(room.ID, msgs[len(msgs)-1].ID)

	case "/leave":
		room, ok := store.Selected()
		if !ok {
			return fmt.Errorf("no room open")
		}
		if err := c.LeaveRoom(room.ID); err != nil {
			return err
		}
		store.Deselect()
		printRooms(store, selfID)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// messageAt resolves a 1-based index (as printed by render) into the selected
// room's message log.
func messageAt(store *chat.State, arg string) (chat.Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("expected a message number, got %q", arg)
	}
	msgs := store.Messages()
	if n < 1 || n > len(msgs) {
		return chat.Message{}, fmt.Errorf("no message %d", n)
	}
	return msgs[n-1], nil
}

func printRooms(store *chat.State, selfID string) {
	fmt.Println("--- rooms ---")
	for i, room := range store.Rooms() {
		marker := " "
		if selected, ok := store.Selected(); ok && selected.ID == room.ID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-24s %s\n", marker, i+1, chat.RoomTitle(room, selfID), chat.Preview(room))
	}
}

// render redraws the selected conversation: date dividers, sender names,
// reactions, and a typing line. Called on every store change.
func render(store *chat.State, selfID string) {
	room, ok := store.Selected()
	if !ok {
		return
	}

	fmt.Printf("\n=== %s ===\n", chat.RoomTitle(room, selfID))

	now := time.Now()
	var lastDay time.Time
	for i, msg := range store.Messages() {
		if lastDay.IsZero() || chat.DateLabel(msg.CreatedAt, now) != chat.DateLabel(lastDay, now) {
			fmt.Printf("  ------ %s ------\n", chat.DateLabel(msg.CreatedAt, now))
		}
		lastDay = msg.CreatedAt

		body := msg.Content
		switch {
		case msg.IsDeleted:
			body = chat.DeletedPlaceholder
		case msg.Type == chat.MessageImage:
			body = "[image]"
		case msg.Type == chat.MessageAudio:
			body = "[voice message]"
		}
		if msg.ReplyTo != nil {
			fmt.Printf("  %2d. %s > replying to %s\n", i+1, msg.Sender.Name, msg.ReplyTo.Sender.Name)
			fmt.Printf("      %s\n", body)
		} else {
			fmt.Printf("  %2d. %s: %s\n", i+1, msg.Sender.Name, body)
		}

		for _, r := range chat.NormalizeReactions(msg.Reactions, selfID) {
			fmt.Printf("      %s x%d\n", r.Emoji, len(r.Users))
		}
	}

	if typing := store.TypingUsers(); len(typing) > 0 {
		fmt.Printf("  (%d typing...)\n", len(typing))
	}
	fmt.Print("> ")
}
