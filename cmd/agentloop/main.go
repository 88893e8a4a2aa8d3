// Command agentloop runs one conversational turn from the command line,
// streaming model output to stdout. Sessions persist under the configured
// session directory and can be resumed, listed or deleted by id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/corentra/agentloop"
	"github.com/corentra/agentloop/config"
	"github.com/corentra/agentloop/core"
	"github.com/corentra/agentloop/session"
)

type options struct {
	Config  string `short:"c" long:"config" description:"Path to YAML configuration file"`
	Session string `short:"s" long:"session" description:"Session id to resume (default: new session)"`
	List    bool   `short:"l" long:"list" description:"List stored sessions and exit"`
	Delete  string `long:"delete" description:"Delete the session with this id and exit"`
	Title   bool   `short:"t" long:"title" description:"Generate a session title after the turn"`
	Resend  bool   `long:"resend" description:"Drop the last answer and resend the last prompt"`

	Args struct {
		Prompt []string `positional-arg-name:"prompt"`
	} `positional-args:"yes"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentloop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return err
		}
	}

	agent, err := agentloop.New(cfg)
	if err != nil {
		return err
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.List:
		ids, err := agent.ListConversations(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	case opts.Delete != "":
		return agent.DeleteConversation(ctx, opts.Delete)
	}

	if err := agent.ConnectMCP(ctx); err != nil {
		return err
	}

	conv, err := resolveConversation(ctx, agent, opts.Session)
	if err != nil {
		return err
	}

	prompt := strings.Join(opts.Args.Prompt, " ")
	if opts.Resend {
		text, ok := conv.PopRound()
		if !ok {
			return fmt.Errorf("session %s has no round to resend", conv.ID)
		}
		prompt = text
	}
	if prompt == "" {
		return fmt.Errorf("nothing to send: provide a prompt or --resend")
	}

	deltas, exec, err := agent.Stream(ctx, conv, prompt)
	if err != nil {
		return err
	}
	for d := range deltas {
		fmt.Print(d.Content)
	}
	fmt.Println()

	result := exec.Result()
	if result.Err != nil {
		return result.Err
	}

	if opts.Title && conv.Title == "" {
		if title, err := exec.GenerateTitle(ctx); err == nil && title != "" {
			fmt.Fprintf(os.Stderr, "title: %s\n", title)
		}
	}

	fmt.Fprintf(os.Stderr, "session=%s state=%s rounds=%d tokens=%d/%d\n",
		conv.ID, result.State, result.Rounds, result.Usage.InputTokens, result.Usage.OutputTokens)
	return nil
}

func resolveConversation(ctx context.Context, agent *agentloop.Agent, id string) (*core.Conversation, error) {
	if id == "" {
		return agent.NewConversation(""), nil
	}
	conv, err := agent.LoadConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return agent.NewConversation(id), nil
	}
	return nil, err
}
