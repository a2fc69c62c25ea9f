// Package interactive provides the command-line shell for bridgectl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/imaustink/homebridge-mqtt-base/pkg/bridge"
)

// Shell handles the interactive command loop for bridgectl.
type Shell struct {
	bridge *bridge.Bridge
	rl     *readline.Instance
}

// New creates a new interactive shell over the given bridge.
func New(b *bridge.Bridge) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{bridge: b, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for asynchronous output to avoid interfering with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "set", "s":
			s.cmdSet(args)

		case "get", "g":
			s.cmdGet(args)

		case "state":
			s.cmdState()

		case "flush":
			s.cmdFlush()

		case "identify", "id":
			s.cmdIdentify()

		case "status":
			s.cmdStatus()

		case "exit", "quit", "q":
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  set <key> <value>   Mutate one state field (coalesced, value: bool/number/string)
  get [key]           Show one field or the full snapshot
  state               Show the full snapshot
  flush               Register an empty mutation and report the next flush outcome
  identify            Invoke the identify hook
  status              Show connection state and pending mutations
  help                Show this help
  exit                Quit
`)
}

func (s *Shell) cmdSet(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: set <key> <value>")
		return
	}

	key, value := args[0], parseValue(args[1])
	s.bridge.SetState(map[string]any{key: value}, func(err error) {
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "set %s: %v\n", key, err)
			return
		}
		fmt.Fprintf(s.rl.Stdout(), "set %s = %v (published)\n", key, value)
	})
}

func (s *Shell) cmdGet(args []string) {
	snap := s.bridge.Snapshot()
	if len(args) == 0 {
		s.cmdState()
		return
	}

	value, ok := snap[args[0]]
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "%s: (unset)\n", args[0])
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%s = %v\n", args[0], value)
}

func (s *Shell) cmdState() {
	snap := s.bridge.Snapshot()
	if len(snap) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "(empty snapshot)")
		return
	}
	for k, v := range snap {
		fmt.Fprintf(s.rl.Stdout(), "  %s = %v\n", k, v)
	}
}

func (s *Shell) cmdFlush() {
	s.bridge.SetState(map[string]any{}, func(err error) {
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "flush failed: %v\n", err)
			return
		}
		fmt.Fprintln(s.rl.Stdout(), "flush published")
	})
}

func (s *Shell) cmdIdentify() {
	s.bridge.Identify(func() {
		fmt.Fprintln(s.rl.Stdout(), "identified")
	})
}

func (s *Shell) cmdStatus() {
	fmt.Fprintf(s.rl.Stdout(), "connection: %s\n", s.bridge.ConnectionState())
	fmt.Fprintf(s.rl.Stdout(), "pending:    %d\n", s.bridge.Pending())
}

// parseValue interprets a command argument as bool, number or string.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}
