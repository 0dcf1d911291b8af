package channel

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/milo/logger"
	"golang.org/x/term"
)

const (
	cliMessageBufferSize = 10
	cliStopWaitTimeout   = 500 * time.Millisecond
)

// CLIChannel implements the Channel interface over stdin/stdout. It exists
// for poking at commands locally without a Discord connection. The prompt is
// only printed when stdin is a terminal, so piped input stays clean.
type CLIChannel struct {
	prompt       string
	interactive  bool
	messages     chan *Message
	done         chan struct{}
	responseDone chan struct{}
	wg           sync.WaitGroup
	msgID        int64
	mu           sync.Mutex
	waitingResp  bool
	stopOnce     sync.Once
}

// NewCLIChannel creates a CLI channel.
func NewCLIChannel() *CLIChannel {
	return &CLIChannel{
		prompt:       "milo> ",
		interactive:  term.IsTerminal(int(os.Stdin.Fd())),
		messages:     make(chan *Message, cliMessageBufferSize),
		done:         make(chan struct{}),
		responseDone: make(chan struct{}, 1),
	}
}

func (c *CLIChannel) Name() string {
	return "cli"
}

func (c *CLIChannel) Start(ctx context.Context) error {
	logger.Info("cli channel started", "interactive", c.interactive)

	c.wg.Add(1)
	go c.readInput(ctx)

	return nil
}

func (c *CLIChannel) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)

		waitDone := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(waitDone)
		}()

		select {
		case <-waitDone:
			close(c.messages)
		case <-time.After(cliStopWaitTimeout):
			logger.Warn("cli channel stop timed out waiting for input loop")
		}

		logger.Info("cli channel stopped")
	})
	return nil
}

func (c *CLIChannel) Send(_ context.Context, resp *Response) error {
	fmt.Println()
	if resp.Embed != nil {
		printEmbed(resp.Embed)
	}
	if resp.Text != "" {
		fmt.Println(resp.Text)
	}
	fmt.Println()

	if c.completeWaitingResponse() {
		select {
		case c.responseDone <- struct{}{}:
		default:
		}
	} else if c.interactive {
		fmt.Print(c.prompt)
	}

	return nil
}

// printEmbed flattens a rich embed to plain text.
func printEmbed(e *Embed) {
	if e.Title != "" {
		fmt.Printf("== %s ==\n", e.Title)
	}
	if e.URL != "" {
		fmt.Println(e.URL)
	}
	if e.Description != "" {
		fmt.Println(e.Description)
	}
	for _, f := range e.Fields {
		fmt.Printf("%s: %s\n", f.Name, f.Value)
	}
	if e.Footer != "" {
		fmt.Printf("-- %s\n", e.Footer)
	}
}

func (c *CLIChannel) Messages() <-chan *Message {
	return c.messages
}

func (c *CLIChannel) readInput(ctx context.Context) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			if c.interactive {
				fmt.Print(c.prompt)
			}

			if !scanner.Scan() {
				return
			}

			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}

			if text == "exit" || text == "quit" || text == "/exit" || text == "/quit" {
				fmt.Println("Goodbye!")
				return
			}

			c.msgID++
			msg := &Message{
				ID:        fmt.Sprintf("cli-%d", c.msgID),
				ChannelID: "cli",
				UserID:    "local",
				Username:  os.Getenv("USER"),
				Text:      text,
				Metadata:  make(map[string]string),
			}

			select {
			case <-c.responseDone:
			default:
			}
			c.setWaitingResponse(true)

			select {
			case c.messages <- msg:
			case <-c.done:
				c.setWaitingResponse(false)
				return
			case <-ctx.Done():
				c.setWaitingResponse(false)
				return
			}

			select {
			case <-c.responseDone:
			case <-c.done:
				c.setWaitingResponse(false)
				return
			case <-ctx.Done():
				c.setWaitingResponse(false)
				return
			}
		}
	}
}

func (c *CLIChannel) setWaitingResponse(v bool) {
	c.mu.Lock()
	c.waitingResp = v
	c.mu.Unlock()
}

func (c *CLIChannel) completeWaitingResponse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.waitingResp {
		return false
	}
	c.waitingResp = false
	return true
}
