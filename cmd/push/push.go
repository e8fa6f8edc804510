// Package push contains the command that submits root words or trees to an ingest server.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/echotree/echotree/cmd/util"
	"github.com/echotree/echotree/pkg/server"
)

const (
	serverFlag   = "server"
	artifactFlag = "artifact"
	retriesFlag  = "retries"
	timeoutFlag  = "timeout"

	defaultServer = "http://localhost:5002"
)

func NewPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <rootWord>... | push --artifact <file|->",
		Short: "Submit root words or a precomputed word tree to an echotree ingest server",
		Long: `The push command posts each root word to the ingest server, which builds its tree and
publishes it to all subscribers. With --artifact the argument names a file (or '-' for stdin)
holding a word tree document that is published as is.`,
		RunE: runPush,
		Args: cobra.MinimumNArgs(1),
	}

	flags := cmd.Flags()

	flags.String(serverFlag, defaultServer, "the base URL of the ingest server")
	flags.Bool(artifactFlag, false, "submit a word tree document instead of root words")
	flags.Int(retriesFlag, 3, "the number of retries on connection errors and 5xx responses")
	flags.Duration(timeoutFlag, 30*time.Second, "a timeout for each submission")

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(command *cobra.Command, args []string) {
		util.MustBindPFlag(serverFlag, flags.Lookup(serverFlag))
		util.MustBindEnv(serverFlag, "ECHOTREE_SERVER")

		util.MustBindPFlag(artifactFlag, flags.Lookup(artifactFlag))
		util.MustBindPFlag(retriesFlag, flags.Lookup(retriesFlag))
		util.MustBindPFlag(timeoutFlag, flags.Lookup(timeoutFlag))
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	client := NewClient(viper.GetString(serverFlag), viper.GetInt(retriesFlag))
	timeout := viper.GetDuration(timeoutFlag)
	out := json.NewEncoder(cmd.OutOrStdout())

	if viper.GetBool(artifactFlag) {
		if len(args) != 1 {
			return fmt.Errorf("--%s takes exactly one file", artifactFlag)
		}

		artifact, err := readArtifact(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result, err := client.SubmitArtifact(ctx, artifact)
		if err != nil {
			return err
		}
		return out.Encode(result)
	}

	for _, word := range args {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		result, err := client.SubmitWord(ctx, word)
		cancel()
		if err != nil {
			return fmt.Errorf("push %q: %w", word, err)
		}
		if err := out.Encode(result); err != nil {
			return err
		}
	}

	return nil
}

func readArtifact(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

// Client submits to an ingest server, retrying connection errors and 5xx responses.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient returns a Client for the ingest server at baseURL.
func NewClient(baseURL string, retries int) *Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = retries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    client,
	}
}

// SubmitWord asks the server to build and publish the tree rooted at word.
func (c *Client) SubmitWord(ctx context.Context, word string) (server.Result, error) {
	return c.post(ctx, "/submit_new_echo_tree", "text/plain; charset=utf-8", []byte(word))
}

// SubmitArtifact asks the server to publish a precomputed tree.
func (c *Client) SubmitArtifact(ctx context.Context, artifact []byte) (server.Result, error) {
	return c.post(ctx, "/submit_echo_tree", "application/json", artifact)
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) (server.Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return server.Result{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return server.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return server.Result{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var result server.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return server.Result{}, fmt.Errorf("decode response: %w", err)
		}
		return result, nil
	case http.StatusAccepted:
		return server.Result{Outcome: server.OutcomePending}, nil
	default:
		var errResp server.ErrorResponse
		if err := json.Unmarshal(data, &errResp); err != nil || errResp.Code == "" {
			return server.Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return server.Result{}, fmt.Errorf("%s: %s (status %d)", errResp.Code, errResp.Message, resp.StatusCode)
	}
}
