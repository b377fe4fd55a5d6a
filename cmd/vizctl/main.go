// Command vizctl is a command-line client for a vizlaunch server.
//
// Usage:
//
//	vizctl [-url URL] launch -language python -mode static -file plot.py
//	vizctl [-url URL] languages
//	vizctl [-url URL] list [-language R] [-status failed] [-limit 20]
//	vizctl [-url URL] get <execution-id>
//	vizctl [-url URL] cancel <execution-id>
//
// The server URL defaults to VIZLAUNCH_URL and the API key is read from
// VIZLAUNCH_API_KEY. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/client"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

const defaultURL = "http://localhost:8080"

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vizctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", envOr("VIZLAUNCH_URL", defaultURL), "vizlaunch server URL")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	c := client.New(*url, client.WithAPIKey(os.Getenv("VIZLAUNCH_API_KEY")))

	var err error
	switch rest[0] {
	case "launch":
		err = cmdLaunch(ctx, c, rest[1:], stdin, stdout, stderr)
	case "languages":
		err = cmdLanguages(ctx, c, stdout)
	case "list":
		err = cmdList(ctx, c, rest[1:], stdout, stderr)
	case "get":
		err = cmdGet(ctx, c, rest[1:], stdout)
	case "cancel":
		err = cmdCancel(ctx, c, rest[1:], stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage(stderr)
		return 2
	default:
		fmt.Fprintf(stderr, "error: %s\n", errorMessage(err))
		return 1
	}
}

func cmdLaunch(ctx context.Context, c *client.Client, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("launch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	language := fs.String("language", "python", "snippet language")
	mode := fs.String("mode", "", "output mode: static, interactive or 3d")
	file := fs.String("file", "-", "code file, - for stdin")
	timeout := fs.Int("timeout", 0, "timeout in seconds, 0 for the server default")
	asJSON := fs.Bool("json", false, "print the full response as JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var code []byte
	var err error
	if *file == "-" {
		code, err = io.ReadAll(stdin)
	} else {
		code, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}

	resp, err := c.Launch(ctx, &api.LaunchRequest{
		Language:       *language,
		Code:           string(code),
		OutputMode:     *mode,
		TimeoutSeconds: *timeout,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(stdout, resp)
	}
	fmt.Fprintln(stdout, resp.Visualization)
	return nil
}

func cmdLanguages(ctx context.Context, c *client.Client, stdout io.Writer) error {
	langs, err := c.Languages(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tALIASES\tEXTENSION\tIMAGE")
	for _, l := range langs {
		aliases := "-"
		if len(l.Aliases) > 0 {
			aliases = fmt.Sprint(l.Aliases)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Name, aliases, l.Extension, l.Image)
	}
	return tw.Flush()
}

func cmdList(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := transport.ListOptions{}
	fs.StringVar(&opts.Language, "language", "", "filter by language")
	status := fs.String("status", "", "filter by status")
	fs.IntVar(&opts.Limit, "limit", 20, "page size")
	fs.StringVar(&opts.After, "after", "", "cursor")
	fs.StringVar(&opts.Order, "order", "", "asc or desc")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	opts.Status = api.ExecutionStatus(*status)

	list, err := c.ListExecutions(ctx, opts)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLANGUAGE\tSTATUS\tFORMAT\tDURATION_MS")
	for _, e := range list.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Language, e.Status, e.Format, e.DurationMs)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.HasMore {
		fmt.Fprintf(stdout, "more results: -after %s\n", list.LastID)
	}
	return nil
}

func cmdGet(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	exec, err := c.GetExecution(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(stdout, exec)
}

func cmdCancel(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := c.Cancel(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "cancelled %s\n", args[0])
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errorMessage prefers the server's message over the wrapped form.
func errorMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Type)
	}
	return err.Error()
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: vizctl [-url URL] <command> [flags]

Commands:
  launch     run a snippet and print its visualization
  languages  list supported languages
  list       list recent executions
  get        show one execution
  cancel     cancel or delete an execution
`)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
