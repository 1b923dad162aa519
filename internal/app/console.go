package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/snapcircle/dmsocket/internal/chat"
	"github.com/snapcircle/dmsocket/internal/conversation"
	"github.com/snapcircle/dmsocket/internal/restapi"

	"github.com/rs/zerolog/log"
)

// messenger is the part of chat.Manager used by the console.
type messenger interface {
	conversation.Sender
	MarkAsRead(ctx context.Context, senderID int64) error
	SendTypingStatus(peerID int64, isTyping bool)
	State() chat.State
	UserID() (int64, bool)
	OnNewMessage(fn func(chat.Message)) func()
	OnReadReceipt(fn func(chat.ReadReceipt)) func()
	OnTypingStatus(fn func(chat.TypingStatus)) func()
	OnError(fn func(chat.ErrorEvent)) func()
	OnConnectionStatus(fn func(connected bool)) func()
}

// directory is the part of restapi.Client used by the console.
type directory interface {
	ListConversations(ctx context.Context) ([]restapi.Conversation, error)
	History(ctx context.Context, peerID int64, page int, limit int) (restapi.HistoryPage, error)
}

var errUsage = errors.New("usage")

const consoleHelp = `commands:
  send <peer> <text>      send a message
  read <peer>             mark messages from peer as read
  typing <peer> on|off    send typing status
  history <peer> [page]   load and print conversation with peer
  conversations           list conversations
  status                  print connection status
  quit                    exit
`

// Console is a line oriented harness around the connection manager. It reads
// commands from in and prints feed events to out.
type Console struct {
	messenger messenger
	directory directory
	in        io.Reader

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	threads map[int64]*conversation.Thread
}

func NewConsole(m messenger, d directory, in io.Reader, out io.Writer) *Console {
	return &Console{
		messenger: m,
		directory: d,
		in:        in,
		out:       out,
		threads:   make(map[int64]*conversation.Thread),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) thread(peerID int64) *conversation.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[peerID]
	if !ok {
		selfID, _ := c.messenger.UserID()
		t = conversation.NewThread(selfID, peerID)
		c.threads[peerID] = t
	}
	return t
}

func (c *Console) existingThreads() []*conversation.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]*conversation.Thread, 0, len(c.threads))
	for _, t := range c.threads {
		res = append(res, t)
	}
	return res
}

func (c *Console) subscribe() func() {
	unsubscribers := []func(){
		c.messenger.OnConnectionStatus(func(connected bool) {
			c.printf("* connected: %t\n", connected)
		}),
		c.messenger.OnNewMessage(c.handleNewMessage),
		c.messenger.OnReadReceipt(c.handleReadReceipt),
		c.messenger.OnTypingStatus(func(s chat.TypingStatus) {
			if s.IsTyping {
				c.printf("* %d is typing\n", s.UserID)
			} else {
				c.printf("* %d stopped typing\n", s.UserID)
			}
		}),
		c.messenger.OnError(func(e chat.ErrorEvent) {
			c.printf("! %s error: %s\n", e.Kind, e.Message)
		}),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

func (c *Console) handleNewMessage(msg chat.Message) {
	for _, t := range c.existingThreads() {
		if t.Belongs(msg) {
			t.Apply(msg)
		}
	}
	c.printf("<- [%s] %d: %s\n", msg.ID, msg.SenderID, describe(msg))
}

func (c *Console) handleReadReceipt(r chat.ReadReceipt) {
	marked := 0
	for _, t := range c.existingThreads() {
		if t.PeerID() == r.By {
			marked += t.MarkReadBy(r.By)
		}
	}
	c.printf("* %d read your messages (%d updated)\n", r.By, marked)
}

func describe(msg chat.Message) string {
	text := msg.Text()
	if msg.ImageURL != "" {
		if text != "" {
			text += " "
		}
		text += "[image " + msg.ImageURL + "]"
	}
	return text
}

// Run reads commands until quit, end of input or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	unsubscribe := c.subscribe()
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("error reading console input")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *Console) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	var err error
	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		c.printf("%s", consoleHelp)
	case "status":
		userID, _ := c.messenger.UserID()
		c.printf("state: %s, user: %d\n", c.messenger.State(), userID)
	case "send":
		err = c.send(ctx, fields[1:], line)
	case "read":
		err = c.read(ctx, fields[1:])
	case "typing":
		err = c.typing(fields[1:])
	case "history":
		err = c.history(ctx, fields[1:])
	case "conversations":
		err = c.conversations(ctx)
	default:
		c.printf("unknown command %q, type help\n", fields[0])
	}
	if errors.Is(err, errUsage) {
		c.printf("%s", consoleHelp)
	} else if err != nil {
		c.printf("error: %v\n", err)
	}
	return false
}

func parsePeer(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errUsage
	}
	peerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || peerID <= 0 {
		return 0, fmt.Errorf("%w: bad peer id %q", errUsage, args[0])
	}
	return peerID, nil
}

func (c *Console) send(ctx context.Context, args []string, line string) error {
	peerID, err := parsePeer(args)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errUsage
	}
	// Keep the original spacing of the text.
	text := strings.TrimSpace(line)
	text = strings.TrimSpace(strings.TrimPrefix(text, "send"))
	text = strings.TrimSpace(strings.TrimPrefix(text, args[0]))

	entry, err := c.thread(peerID).Send(ctx, c.messenger, text)
	if err != nil {
		return fmt.Errorf("message %s not sent: %w", entry.Key(), err)
	}
	c.printf("-> [%s] %s\n", entry.Message.ID, entry.Status)
	return nil
}

func (c *Console) read(ctx context.Context, args []string) error {
	peerID, err := parsePeer(args)
	if err != nil {
		return err
	}
	if err := c.messenger.MarkAsRead(ctx, peerID); err != nil {
		return err
	}
	c.printf("marked messages from %d as read\n", peerID)
	return nil
}

func (c *Console) typing(args []string) error {
	peerID, err := parsePeer(args)
	if err != nil {
		return err
	}
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return errUsage
	}
	c.messenger.SendTypingStatus(peerID, args[1] == "on")
	return nil
}

func (c *Console) history(ctx context.Context, args []string) error {
	peerID, err := parsePeer(args)
	if err != nil {
		return err
	}
	page := 1
	if len(args) > 1 {
		page, err = strconv.Atoi(args[1])
		if err != nil || page <= 0 {
			return fmt.Errorf("%w: bad page %q", errUsage, args[1])
		}
	}
	res, err := c.directory.History(ctx, peerID, page, restapi.DefaultPageSize)
	if err != nil {
		return err
	}
	t := c.thread(peerID)
	added := t.MergeHistory(res.Messages)
	for _, e := range t.Entries() {
		read := ""
		if e.Message.IsRead {
			read = " (read)"
		}
		c.printf("%s [%s] %d: %s %s%s\n", e.Message.CreatedAt.Format("2006-01-02 15:04:05"), e.Key(), e.Message.SenderID, describe(e.Message), e.Status, read)
	}
	c.printf("page %d: %d new, more: %t\n", res.Page, added, res.HasMore)
	return nil
}

func (c *Console) conversations(ctx context.Context) error {
	list, err := c.directory.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range list {
		last := ""
		if conv.LastMessage != nil {
			last = describe(*conv.LastMessage)
		}
		c.printf("%d %s (%d unread): %s\n", conv.UserID, conv.Username, conv.UnreadCount, last)
	}
	if len(list) == 0 {
		c.printf("no conversations\n")
	}
	return nil
}
