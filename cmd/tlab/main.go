// Command tlab talks to a Transformer Lab API from the shell.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"tlab-bridge/internal/tlab"
	"tlab-bridge/pkg/logging/logging"
)

const usage = `usage: tlab [--host URL] <command> [flags] [args]

commands:
  models                       list installed models
  datasets [--public]          list installed (or gallery) datasets
  preview ID                   show the first rows of a dataset
  download ID                  download a gallery dataset
  delete ID                    delete a dataset
  add ID --train F --eval F    create a dataset from two JSONL files
  chat --model M [flags] TEXT  stream a chat completion
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tlab:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := pflag.NewFlagSet("tlab", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	host := global.String("host", getenv("TLAB_HOST", tlab.DefaultHost), "Transformer Lab API host")

	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	logger := logging.DefaultLogger()
	defer logger.Sync()

	client, err := tlab.NewClient(tlab.Config{Host: *host}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	logger.Debug("running command", zap.String("command", cmd), zap.String("host", client.Host()))

	switch cmd {
	case "models":
		return printRaw(stdout)(client.ListModels(ctx))
	case "datasets":
		return runDatasets(ctx, client, rest, stdout)
	case "preview", "download", "delete":
		return runDatasetByID(ctx, client, cmd, rest, stdout)
	case "add":
		return runAdd(ctx, client, rest, stdout)
	case "chat":
		return runChat(ctx, client, rest, stdout)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runDatasets(ctx context.Context, client *tlab.Client, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("datasets", pflag.ContinueOnError)
	public := fs.Bool("public", false, "list the dataset gallery")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *public {
		return printRaw(stdout)(client.ListPublicDatasets(ctx))
	}
	return printRaw(stdout)(client.ListDatasets(ctx))
}

func runDatasetByID(ctx context.Context, client *tlab.Client, cmd string, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%s: expected exactly one dataset ID", cmd)
	}
	id := args[0]

	switch cmd {
	case "preview":
		return printRaw(stdout)(client.PreviewDataset(ctx, id))
	case "download":
		return printRaw(stdout)(client.DownloadDataset(ctx, id))
	default:
		return printRaw(stdout)(client.DeleteDataset(ctx, id))
	}
}

func runAdd(ctx context.Context, client *tlab.Client, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	trainPath := fs.String("train", "", "training data JSONL file")
	evalPath := fs.String("eval", "", "evaluation data JSONL file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("add: expected exactly one dataset ID")
	}
	if *trainPath == "" || *evalPath == "" {
		return errors.New("add: --train and --eval are required")
	}

	training, err := os.ReadFile(*trainPath)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	eval, err := os.ReadFile(*evalPath)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	res, err := client.AddDataset(ctx, fs.Arg(0), training, eval)
	if err != nil {
		return err
	}
	return printJSON(stdout, res)
}

func runChat(ctx context.Context, client *tlab.Client, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	model := fs.String("model", "", "model to chat with")
	system := fs.String("system", "", "system prompt")
	temperature := fs.Float64("temperature", 0, "sampling temperature")
	maxTokens := fs.Int("max-tokens", 0, "maximum tokens to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("chat: missing prompt")
	}

	req := &tlab.ChatRequest{
		Model:        *model,
		SystemPrompt: *system,
		Messages:     []tlab.ChatMessage{{Role: tlab.RoleUser, Content: strings.Join(fs.Args(), " ")}},
		MaxTokens:    *maxTokens,
	}
	if fs.Changed("temperature") {
		req.Temperature = temperature
	}

	// Print only what each partial adds.
	printed := 0
	res, err := client.Chat(ctx, req, func(accumulated string) {
		if len(accumulated) > printed {
			fmt.Fprint(stdout, accumulated[printed:])
			printed = len(accumulated)
		}
	})
	if err != nil {
		return err
	}
	if len(res.Output) > printed {
		fmt.Fprint(stdout, res.Output[printed:])
	}
	fmt.Fprintln(stdout)
	return nil
}

// printRaw pretty-prints a raw JSON result.
func printRaw(stdout io.Writer) func(json.RawMessage, error) error {
	return func(raw json.RawMessage, err error) error {
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("format response: %w", err)
		}
		buf.WriteByte('\n')
		_, err = stdout.Write(buf.Bytes())
		return err
	}
}

func printJSON(stdout io.Writer, v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
