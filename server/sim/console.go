package sim

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

const (
	defaultPromptPrefix = "> "
	maxHistoryEntries   = 128
)

// ConsoleCommand is one admin command the console dispatches by name, the
// same narrow shape the teacher's cmd.Command interface reduces to once a
// line has been tokenized: a name, a one-line usage hint, and a handler that
// writes its result to an io.Writer rather than returning a value.
type ConsoleCommand struct {
	Name  string
	Usage string
	Run   func(args []string, out io.Writer, srv *Server, store *Store, global *Global)
}

// Console is a line-oriented admin REPL bound to a running Server, adapted
// from the teacher's server/console package (bufio.Scanner over an
// io.Reader, c-bata/go-prompt for interactive use) and re-pointed at this
// core's Server/Store/Global instead of dragonfly's *server.Server and
// *world.Tx.
type Console struct {
	srv    *Server
	store  *Store
	global *Global
	log    *slog.Logger
	reader io.Reader
	out    io.Writer

	commands map[string]ConsoleCommand
	history  []string
}

// NewConsole returns a Console bound to srv, reading from os.Stdin and
// writing to os.Stdout by default, pre-registered with the built-in admin
// commands (stats, players, shutdown).
func NewConsole(srv *Server, store *Store, global *Global, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	c := &Console{
		srv:      srv,
		store:    store,
		global:   global,
		log:      log,
		reader:   os.Stdin,
		out:      os.Stdout,
		commands: make(map[string]ConsoleCommand),
	}
	for _, cmd := range builtinConsoleCommands() {
		c.Register(cmd)
	}
	return c
}

// WithReader sets a custom input reader, enabling tests to drive the console
// without relying on os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// WithWriter sets a custom output writer.
func (c *Console) WithWriter(w io.Writer) *Console {
	if w != nil {
		c.out = w
	}
	return c
}

// Register adds or replaces a command by name.
func (c *Console) Register(cmd ConsoleCommand) { c.commands[cmd.Name] = cmd }

// Run starts consuming commands. Interactive mode (os.Stdin) uses
// c-bata/go-prompt and loops until the process exits; anything else falls
// back to a plain line scanner that returns once the reader reaches EOF.
// Neither mode returns when the bound Server stops.
func (c *Console) Run() {
	if c.reader != os.Stdin {
		c.runScanner()
		return
	}
	c.runInteractive()
}

func (c *Console) runScanner() {
	scanner := bufio.NewScanner(c.reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.execute(line)
	}
	if err := scanner.Err(); err != nil {
		c.log.Error("console input error", "err", err)
	}
}

func (c *Console) runInteractive() {
	for {
		line := prompt.Input(defaultPromptPrefix, c.complete,
			prompt.OptionTitle("hyperion Console"),
			prompt.OptionHistory(c.history),
			prompt.OptionPrefix(defaultPromptPrefix),
			prompt.OptionCompletionOnDown(),
			prompt.OptionMaxSuggestion(12),
		)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

func (c *Console) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	c.history = append(c.history, line)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}

	cmd, ok := c.commands[strings.ToLower(fields[0])]
	if !ok {
		fmt.Fprintf(c.out, "unknown command %q\n", fields[0])
		return
	}
	cmd.Run(fields[1:], c.out, c.srv, c.store, c.global)
}

func (c *Console) complete(doc prompt.Document) []prompt.Suggest {
	word := doc.GetWordBeforeCursor()
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	suggestions := make([]prompt.Suggest, 0, len(names))
	for _, name := range names {
		suggestions = append(suggestions, prompt.Suggest{
			Text:        name,
			Description: c.commands[name].Usage,
		})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func builtinConsoleCommands() []ConsoleCommand {
	return []ConsoleCommand{
		{
			Name:  "stats",
			Usage: "print the current tick and player count",
			Run: func(args []string, out io.Writer, srv *Server, store *Store, global *Global) {
				fmt.Fprintf(out, "tick=%d players=%d\n", global.Tick(), global.PlayerCount())
			},
		},
		{
			Name:  "players",
			Usage: "list connected players by name",
			Run: func(args []string, out io.Writer, srv *Server, store *Store, global *Global) {
				var names []string
				store.QueryPlayers(func(id EntityId) {
					if n, ok := store.Name(id); ok {
						names = append(names, n.Value)
					}
				})
				sort.Strings(names)
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
			},
		},
		{
			Name:  "shutdown",
			Usage: "stop the simulation loop after the current tick",
			Run: func(args []string, out io.Writer, srv *Server, store *Store, global *Global) {
				srv.Shutdown()
				fmt.Fprintln(out, "shutdown requested")
			},
		},
	}
}
