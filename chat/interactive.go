// chat/interactive.go
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deepchat/llm"
	"deepchat/types"
)

// ResumableStore extends SessionStore with lookup of the latest session.
type ResumableStore interface {
	SessionStore
	Last() (string, error)
}

var (
	promptLabel    = color.New(color.FgGreen, color.Bold)
	assistantLabel = color.New(color.FgBlue, color.Bold)
	noticeText     = color.New(color.FgYellow)
	dimText        = color.New(color.Faint)
	toolText       = color.New(color.FgCyan)
)

// Interactive runs the terminal chat loop on top of an orchestrator.
type Interactive struct {
	client       llm.ChatClient
	orch         *Orchestrator
	store        ResumableStore
	logger       zerolog.Logger
	in           io.Reader
	out          io.Writer
	stream       bool
	cachedModels []string
}

// NewInteractive creates a REPL bound to stdin/stdout.
func NewInteractive(client llm.ChatClient, orch *Orchestrator, store ResumableStore, stream bool, logger zerolog.Logger) *Interactive {
	return &Interactive{
		client: client,
		orch:   orch,
		store:  store,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
		stream: stream,
	}
}

// Run reads user input until exit. Resumes the most recent session if one
// exists, otherwise starts fresh.
func (i *Interactive) Run(ctx context.Context, systemPrompt string) error {
	sessionID, messages := i.resumeSession()
	i.orch.SetSession(sessionID, messages)
	if len(messages) > 0 {
		noticeText.Fprintf(i.out, "Resumed session %s (%d messages)\n", sessionID, len(messages))
	}
	if systemPrompt != "" {
		i.orch.SetSystemPrompt(systemPrompt)
	}

	i.printBanner()

	scanner := bufio.NewScanner(i.in)
	for {
		promptLabel.Fprint(i.out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if done := i.handleCommand(ctx, input); done {
			return nil
		} else if isCommand(input) {
			continue
		}

		i.runTurn(ctx, input)
	}
}

func (i *Interactive) resumeSession() (string, []types.Message) {
	if i.store == nil {
		return newSessionID(), nil
	}
	last, err := i.store.Last()
	if err != nil || last == "" {
		return newSessionID(), nil
	}
	messages, err := i.store.Load(last)
	if err != nil {
		i.logger.Warn().Str("session", last).Err(err).Msg("failed to load session")
		return newSessionID(), nil
	}
	return last, messages
}

func newSessionID() string {
	return "s-" + uuid.NewString()[:8]
}

func (i *Interactive) printBanner() {
	color.New(color.FgCyan, color.Bold).Fprintln(i.out, "deepchat interactive")
	dimText.Fprintln(i.out, "Type 'exit' or 'quit' to end the session")
	dimText.Fprintln(i.out, "Type 'clear' to clear chat history, 'system <prompt>' to set a system prompt")
	dimText.Fprintln(i.out, "Commands: :new [id]  :session <id>  :status  :models  :model <name|index>  :stream on|off  :tools list|on|off")
}

func isCommand(input string) bool {
	if strings.HasPrefix(input, ":") {
		return true
	}
	switch strings.ToLower(input) {
	case "exit", "quit", "clear":
		return true
	}
	return strings.HasPrefix(input, "system ")
}

// handleCommand processes REPL commands; returns true when the loop should
// terminate.
func (i *Interactive) handleCommand(ctx context.Context, input string) bool {
	switch {
	case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
		noticeText.Fprintln(i.out, "Goodbye!")
		return true

	case strings.EqualFold(input, "clear"):
		i.orch.Reset()
		noticeText.Fprintln(i.out, "Chat history cleared")

	case strings.HasPrefix(input, "system "):
		i.orch.SetSystemPrompt(strings.TrimPrefix(input, "system "))
		noticeText.Fprintln(i.out, "System prompt updated")

	case input == ":new", strings.HasPrefix(input, ":new "):
		id := newSessionID()
		if rest := strings.Fields(input); len(rest) > 1 {
			id = rest[1]
		}
		i.orch.SetSession(id, nil)
		noticeText.Fprintf(i.out, "Started new session %s\n", id)

	case strings.HasPrefix(input, ":session "):
		id := strings.TrimSpace(strings.TrimPrefix(input, ":session "))
		if id == "" {
			fmt.Fprintln(i.out, "usage: :session <id>")
			break
		}
		var messages []types.Message
		if i.store != nil {
			loaded, err := i.store.Load(id)
			if err != nil {
				fmt.Fprintf(i.out, "failed to load session: %v\n", err)
				break
			}
			messages = loaded
		}
		i.orch.SetSession(id, messages)
		noticeText.Fprintf(i.out, "Loaded session %s (%d messages)\n", id, len(messages))

	case input == ":status":
		fmt.Fprintf(i.out, "session=%s messages=%d model=%s stream=%v tools=%v\n",
			i.orch.SessionID(), len(i.orch.History()), i.orch.ModelName(), i.stream, i.orch.ToolsEnabled())

	case input == ":models":
		i.listModels(ctx)

	case strings.HasPrefix(input, ":model "):
		i.selectModel(strings.TrimSpace(strings.TrimPrefix(input, ":model ")))

	case strings.HasPrefix(input, ":stream "):
		value := strings.TrimSpace(strings.TrimPrefix(input, ":stream "))
		i.stream = value == "on" || value == "true" || value == "1"
		fmt.Fprintf(i.out, "stream=%v\n", i.stream)

	case input == ":tools list":
		for _, def := range i.orch.registry.Definitions() {
			fmt.Fprintf(i.out, "- %s: %s\n", def.Function.Name, def.Function.Description)
		}

	case input == ":tools on":
		i.orch.SetToolsEnabled(true)
		noticeText.Fprintln(i.out, "Tools enabled")

	case input == ":tools off":
		i.orch.SetToolsEnabled(false)
		noticeText.Fprintln(i.out, "Tools disabled")

	case strings.HasPrefix(input, ":"):
		fmt.Fprintf(i.out, "unknown command: %s\n", input)
	}
	return false
}

func (i *Interactive) listModels(ctx context.Context) {
	models, err := i.client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(i.out, "models error: %v\n", err)
		return
	}
	sort.Strings(models)
	i.cachedModels = models
	for n, model := range models {
		if n >= 50 {
			fmt.Fprintf(i.out, "... %d more\n", len(models)-50)
			break
		}
		fmt.Fprintf(i.out, "%2d. %s\n", n+1, model)
	}
	dimText.Fprintln(i.out, "use :model <number> to select")
}

func (i *Interactive) selectModel(arg string) {
	if arg == "" {
		fmt.Fprintln(i.out, "usage: :model <name|index>")
		return
	}
	if idx, err := strconv.Atoi(arg); err == nil {
		if idx < 1 || idx > len(i.cachedModels) {
			fmt.Fprintln(i.out, "invalid index")
			return
		}
		arg = i.cachedModels[idx-1]
	}
	i.orch.SetModel(arg)
	fmt.Fprintf(i.out, "model set to %s\n", arg)
}

func (i *Interactive) runTurn(ctx context.Context, input string) {
	i.orch.OnToolCall = func(call types.ToolCall) {
		toolText.Fprintf(i.out, "→ calling %s with %s\n", call.Function.Name, call.Function.Arguments)
	}
	i.orch.OnToolResult = func(call types.ToolCall, result string, err error) {
		if err != nil {
			toolText.Fprintf(i.out, "← %s failed: %v\n", call.Function.Name, err)
			return
		}
		toolText.Fprintf(i.out, "← %s\n", firstLine(result))
	}

	assistantLabel.Fprint(i.out, "Assistant: ")

	// Decorative only: the spinner runs alongside a non-streaming call and
	// is stopped unconditionally before the result is used.
	var indicator *spinner.Spinner
	if !i.stream {
		indicator = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(i.out))
		indicator.Suffix = " thinking..."
		indicator.Start()
	}

	result, err := i.orch.ProcessTurn(ctx, input, i.stream)
	if indicator != nil {
		indicator.Stop()
	}
	if err != nil {
		fmt.Fprintf(i.out, "\nError: %v\n", err)
		return
	}

	if result.Streamed {
		// The final completion already printed as it arrived.
		fmt.Fprintln(i.out)
		return
	}
	fmt.Fprintf(i.out, "%s\n", result.Content)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
