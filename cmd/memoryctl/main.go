package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/config"
	"github.com/Protocol-Lattice/defi-agent/src/helpers"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/prompt"
	"github.com/Protocol-Lattice/defi-agent/src/recorder"
	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

const usage = `usage: memoryctl [-config file] <command> [flags]

commands:
  demo                               record a swap and a failed bridge, query and reflect on them
  add    -kind K -importance I [-attrs k=v,...] <content>
  search [-n 5] <query>
  prompt [-budget 400] <base prompt> <query>`

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to the offline profile)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*configPath, flag.Args()); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(configPath string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	rt, err := config.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	switch args[0] {
	case "demo":
		return runDemo(ctx, rt)
	case "add":
		return runAdd(ctx, rt, args[1:])
	case "search":
		return runSearch(ctx, rt, args[1:])
	case "prompt":
		return runPrompt(ctx, rt, args[1:])
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func runAdd(ctx context.Context, rt *config.Runtime, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	kind := fs.String("kind", string(model.KindReflection), "memory kind")
	importance := fs.Float64("importance", 0.5, "importance in [0,1]")
	attrs := fs.String("attrs", "", "comma separated key=value attributes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := model.ParseKind(*kind)
	if err != nil {
		return err
	}
	id, err := rt.Engine.Create(ctx, strings.Join(fs.Args(), " "), k, *importance, helpers.ParseAttributes(*attrs))
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runSearch(ctx context.Context, rt *config.Runtime, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	n := fs.Int("n", 5, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	results, err := rt.Engine.RetrieveScored(ctx, strings.Join(fs.Args(), " "), *n)
	if err != nil {
		return err
	}
	printScored(results)
	return nil
}

func runPrompt(ctx context.Context, rt *config.Runtime, args []string) error {
	fs := flag.NewFlagSet("prompt", flag.ContinueOnError)
	budget := fs.Int("budget", 400, "character budget of the whole prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("prompt needs <base prompt> <query>")
	}
	out, err := prompt.NewCompressor(rt.Engine).Compress(ctx, fs.Arg(0), fs.Arg(1), *budget)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runDemo(ctx context.Context, rt *config.Runtime) error {
	swap := tools.Func{
		ToolSpec: tools.ToolSpec{Name: "swap", Description: "Swap tokens on an AMM"},
		Fn: func(_ context.Context, req tools.ToolRequest) (tools.ToolResponse, error) {
			return tools.ToolResponse{
				Content:  fmt.Sprintf("swapped %v for %v", req.Arguments["fromToken"], req.Arguments["toToken"]),
				Metadata: map[string]string{"transactionId": "0x5f3c9a"},
			}, nil
		},
	}
	bridge := rt.Recorder.Wrap("bridge", func(context.Context, map[string]any) (recorder.Result, error) {
		return recorder.Result{}, errors.New("insufficient gas on destination chain")
	})

	ag, err := rt.NewAgent("", swap)
	if err != nil {
		return err
	}
	fmt.Printf("tools: %s\n", helpers.ToolNames([]tools.Tool{swap}))

	if _, err := ag.Invoke(ctx, "swap", map[string]any{
		"userId": "alice", "protocol": "AMM", "fromToken": "WETH", "toToken": "USDC",
	}); err != nil {
		return err
	}
	if _, err := bridge(ctx, map[string]any{"userId": "alice", "toChain": "arbitrum"}); err != nil {
		fmt.Printf("bridge failed as expected: %v\n", err)
	}
	if err := ag.Flush(ctx); err != nil {
		return err
	}

	scored, err := ag.ScoredMemories(ctx, "swap WETH to USDC", 5)
	if err != nil {
		return err
	}
	printScored(scored)

	compressed, err := ag.MemoryAwarePrompt(ctx, "Plan the next trade.", "swap WETH to USDC", 400)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", compressed)

	decision, err := ag.Decide(ctx, "Should I bridge to arbitrum again before swapping WETH?")
	if err != nil {
		return err
	}
	fmt.Printf("\ndecision: %s\n", decision)

	if refl, err := rt.NewReflector().Reflect(ctx, "bridge to arbitrum"); err != nil {
		fmt.Printf("reflection skipped: %v\n", err)
	} else {
		fmt.Printf("reflection %s (score %.2f): %s\n", refl.ID, refl.Verdict.Score, refl.Verdict.Lesson)
	}
	fmt.Printf("engine: %+v\nrecorder: %+v\n", rt.Engine.Metrics(), rt.Recorder.Stats())
	return nil
}

func printScored(results []model.ScoredMemory) {
	if len(results) == 0 {
		fmt.Println("(no memories)")
		return
	}
	for _, r := range results {
		fmt.Printf("%.3f  sim=%.3f  [%s] %s\n", r.Score, r.Similarity, r.Record.Kind, r.Record.Content)
	}
}
