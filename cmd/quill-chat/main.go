// ABOUTME: Interactive chat client for a quill agent over the WebSocket stream.
// ABOUTME: Readline-style input with slash commands, suggestion approval, and transcript export.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/quill-labs/quill-agent/internal/config"
	"github.com/quill-labs/quill-agent/internal/notebook"
	"github.com/quill-labs/quill-agent/internal/protocol"
	"github.com/quill-labs/quill-agent/internal/safety"
	"github.com/quill-labs/quill-agent/internal/session"
	"github.com/quill-labs/quill-agent/internal/suggestion"
	"github.com/quill-labs/quill-agent/internal/transcript"
)

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "dev"

const banner = `
             _ _ _
  __ _ _   _(_) | |       ___| |__   __ _| |_
 / _' | | | | | | |_____ / __| '_ \ / _' | __|
| (_| | |_| | | | |_____| (__| | | | (_| | |_
 \__, |\__,_|_|_|_|      \___|_| |_|\__,_|\__|
    |_|
`

func main() {
	configPath := flag.String("config", "", "Config file path (default: QUILL_CONFIG, ./quill.yaml, ~/.config/quill/agent.yaml)")
	serverURL := flag.String("server", "", "Agent stream URL, overrides config")
	model := flag.String("model", "", "Model override, e.g. anthropic/claude")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *serverURL, *model); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, serverURL, model string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	if configPath == "" {
		configPath = config.Locate()
	}
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if model != "" {
		cfg.Agent.CustomModel = model
	}

	logger := setupLogger(cfg.Logging)

	green.Print("    ▶ ")
	fmt.Printf("Server:  %s\n", cfg.Server.URL)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.Agent.EffectiveModel())
	green.Print("    ▶ ")
	fmt.Printf("Safety:  %s\n", cfg.Agent.SafetyMode)
	if configPath != "" {
		green.Print("    ▶ ")
		fmt.Printf("Config:  %s\n", configPath)
	}
	fmt.Println()

	mode, err := safety.ParseMode(cfg.Agent.SafetyMode)
	if err != nil {
		return err
	}

	nb := notebook.NewMemory(cfg.Agent.MaxContextCells, nil)
	engine := suggestion.NewEngine(nb, safety.NewChecker(mode), logger)

	client := session.NewClient(session.Options{
		URL:               cfg.Server.URL,
		Config:            cfg.Agent,
		ContextProvider:   nb,
		Logger:            logger,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ReconnectDelay:    cfg.Session.ReconnectDelay,
	})
	defer client.Disconnect()

	if configPath != "" {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			if err := client.UpdateConfig(next.Agent); err != nil {
				logger.Warn("applying reloaded config", "error", err)
			}
		})
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}

	if err := client.Connect(ctx); err != nil {
		// The client keeps retrying in the background; the user can still
		// inspect state and quit.
		fmt.Printf("[warn] %v (retrying in background)\n", err)
	}

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	app := &chatApp{
		client:  client,
		engine:  engine,
		nb:      nb,
		cfg:     cfg,
		printed: make(map[string]bool),
	}
	return app.loop(ctx)
}

// chatApp holds the interactive loop's state.
type chatApp struct {
	client  *session.Client
	engine  *suggestion.Engine
	nb      *notebook.Memory
	cfg     *config.Config
	printed map[string]bool       // message ids already rendered
	pending []protocol.Suggestion // suggestions from the last reply, awaiting /apply
}

func (a *chatApp) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := a.command(ctx, input)
			if err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			if quit {
				return nil
			}
			fmt.Println()
			continue
		}

		if err := a.client.SendChat(input); err != nil {
			fmt.Printf("[error] %v\n", err)
			fmt.Println()
			continue
		}
		a.awaitReply(ctx)
		fmt.Println()
	}
}

// command handles one slash command; returns true to quit.
func (a *chatApp) command(ctx context.Context, input string) (bool, error) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help":
		printHelp()
	case "/status":
		a.printStatus()
	case "/plan":
		a.printPlan()
	case "/cells":
		a.printCells()
	case "/apply":
		return false, a.apply(ctx, args)
	case "/clear":
		if err := a.client.ClearHistory(); err != nil {
			return false, err
		}
		fmt.Println("Requested history clear")
	case "/export":
		return false, a.export(args)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /plan           Show the agent's execution plan")
	fmt.Println("  /apply <n>      Apply suggestion n from the last reply")
	fmt.Println("  /cells          Show notebook cells")
	fmt.Println("  /clear          Clear conversation history")
	fmt.Println("  /export [path]  Export transcript as HTML")
	fmt.Println("  /status         Show connection status")
	fmt.Println("  /help           Show this help")
	fmt.Println("  /quit           Exit")
}

// awaitReply renders the streamed reply as it accumulates, then the final
// message with its suggestions. Inbound frames arrive on the client's read
// loop, so this just polls snapshots.
func (a *chatApp) awaitReply(ctx context.Context) {
	const replyTimeout = 2 * time.Minute
	deadline := time.NewTimer(replyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(80 * time.Millisecond)
	defer tick.Stop()

	var shown int // runes of streamed content already printed
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			fmt.Println("[warn] no reply from agent")
			return
		case <-tick.C:
		}

		snap := a.client.Store().Snapshot()

		if snap.Streaming != nil {
			text := []rune(snap.Streaming.Content)
			if len(text) > shown {
				fmt.Print(string(text[shown:]))
				shown = len(text)
			}
			continue
		}

		if done := a.renderNew(snap, shown > 0); done {
			return
		}
		if snap.LastError != "" && snap.State != session.StateConnected {
			fmt.Printf("[error] %s\n", snap.LastError)
			return
		}
	}
}

// renderNew prints messages not yet shown; returns true once an agent turn
// (assistant or system) has been rendered.
func (a *chatApp) renderNew(snap session.Snapshot, streamed bool) bool {
	done := false
	for _, msg := range snap.Messages {
		if a.printed[msg.ID] {
			continue
		}
		a.printed[msg.ID] = true
		switch msg.Role {
		case "assistant":
			if streamed {
				// Streamed text is already on screen; just terminate the line.
				fmt.Println()
			} else {
				fmt.Println(msg.Content)
			}
			a.pending = nil
			for i, s := range msg.Suggestions {
				color.Yellow("  [%d] %s %s", i+1, s.Kind, s.Description)
				if s.Code != "" {
					for _, line := range strings.Split(s.Code, "\n") {
						color.HiBlack("      %s", line)
					}
				}
			}
			if len(msg.Suggestions) > 0 {
				a.pending = msg.Suggestions
				fmt.Println("Use /apply <n> to apply a suggestion.")
			}
			done = true
		case "system":
			color.Red("%s", msg.Content)
			done = true
		}
	}
	return done
}

func (a *chatApp) apply(ctx context.Context, args string) error {
	if len(a.pending) == 0 {
		return errors.New("no suggestions to apply")
	}
	n := 1
	if args != "" {
		var err error
		n, err = strconv.Atoi(args)
		if err != nil {
			return fmt.Errorf("usage: /apply <n>")
		}
	}
	if n < 1 || n > len(a.pending) {
		return fmt.Errorf("suggestion %d out of range (1-%d)", n, len(a.pending))
	}
	sug := a.pending[n-1]

	cfg := a.client.Store().Config()
	if cfg.RequireApproval && !suggestion.ShouldAutoExecute(sug, cfg) {
		fmt.Printf("Apply %s", sug.Kind)
		if sug.TargetID != "" {
			fmt.Printf(" to %s", sug.TargetID)
		}
		fmt.Print("? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Skipped")
			return nil
		}
	}

	out, err := a.engine.Apply(ctx, sug, cfg)
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		color.Yellow("  warning: %s", w)
	}
	if out.Ran {
		fmt.Printf("Applied and ran cell %s\n", out.CellID)
	} else {
		fmt.Printf("Applied to cell %s\n", out.CellID)
	}
	return nil
}

func (a *chatApp) export(path string) error {
	if path == "" {
		dir := a.cfg.Transcript.OutputDir
		name := fmt.Sprintf("transcript-%s.html", time.Now().Format("20060102-150405"))
		path = filepath.Join(dir, name)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating transcript file: %w", err)
	}
	defer f.Close()

	if err := transcript.WriteHTML(f, a.client.Store().Snapshot()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func (a *chatApp) printStatus() {
	snap := a.client.Store().Snapshot()
	fmt.Printf("State:    %s\n", snap.State)
	if snap.SessionID != "" {
		fmt.Printf("Session:  %s\n", snap.SessionID)
	}
	fmt.Printf("Model:    %s\n", snap.Config.EffectiveModel())
	fmt.Printf("Messages: %d\n", len(snap.Messages))
	if !snap.LastPong.IsZero() {
		fmt.Printf("Last pong: %s ago\n", time.Since(snap.LastPong).Round(time.Second))
	}
	if snap.LastError != "" {
		color.Red("Last error: %s", snap.LastError)
	}
}

func (a *chatApp) printPlan() {
	snap := a.client.Store().Snapshot()
	if len(snap.Plan) == 0 {
		fmt.Println("No execution plan")
		return
	}
	sum := a.client.Store().PlanSummary()
	fmt.Printf("Plan: %d/%d complete", sum.Completed, sum.Total)
	if sum.Errors > 0 {
		fmt.Print(color.RedString(" (%d failed)", sum.Errors))
	}
	fmt.Println()
	for i, step := range snap.Plan {
		marker := " "
		switch step.Status {
		case "complete":
			marker = color.GreenString("✓")
		case "error":
			marker = color.RedString("✗")
		case "executing":
			marker = color.YellowString("▶")
		case "cancelled":
			marker = color.HiBlackString("-")
		}
		fmt.Printf("  %s %d. %s\n", marker, i+1, step.Description)
		if step.Error != "" {
			fmt.Printf("       %s\n", color.RedString("%s", step.Error))
		}
	}
}

func (a *chatApp) printCells() {
	cells := a.nb.Cells()
	if len(cells) == 0 {
		fmt.Println("Notebook is empty")
		return
	}
	for i, cell := range cells {
		color.HiBlack("-- cell %d (%s) --", i+1, cell.ID)
		fmt.Println(cell.Code)
	}
}
