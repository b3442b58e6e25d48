package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hicsail/kidney-web/internal/application/dto"
	"github.com/hicsail/kidney-web/internal/application/handler"
	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/bootstrap"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

type cli struct {
	userID  string
	timeout time.Duration
	verbose bool
	handler ports.Handler
	deps    *bootstrap.Dependencies
}

// newRootCmd builds the command tree. A nil handler is built from the
// environment configuration before the first command runs.
func newRootCmd(h ports.Handler) *cobra.Command {
	c := &cli{handler: h}

	root := &cobra.Command{
		Use:   "kidneyctl",
		Short: "Manage files in a user's storage namespace",
		Long: `kidneyctl runs the file operations of the web API against the configured
storage backend on behalf of one user.

Storage is selected with the same environment as the server
(ADAPTER_STORAGE, STORAGE_BUCKET_OR_PATH, S3_*).`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: c.teardown,
	}

	root.PersistentFlags().StringVarP(&c.userID, "user", "u", "", "User id whose namespace is addressed")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Operation timeout")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at info level")
	_ = root.MarkPersistentFlagRequired("user")

	root.AddCommand(
		c.listCmd(),
		c.getCmd(),
		c.putCmd(),
		c.deleteCmd(),
		c.mkdirCmd(),
		c.rmdirCmd(),
		c.resultsCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if c.handler != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !c.verbose {
		cfg.LogLevel = "error"
	}
	// The CLI has no scrape endpoint
	cfg.Adapters.Metrics = "noop"

	deps, err := bootstrap.InitializeDependencies(cfg)
	if err != nil {
		return err
	}
	h, err := bootstrap.BuildHandler(deps)
	if err != nil {
		return err
	}
	c.deps = deps
	c.handler = h
	return nil
}

func (c *cli) teardown(cmd *cobra.Command, args []string) {
	if c.deps != nil {
		c.deps.Sync()
	}
}

// exec sends one request through the handler and turns an unsuccessful
// response into an error.
func (c *cli) exec(cmd *cobra.Command, requestType string, payload interface{}) (ports.RuntimeResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.RuntimeResponse{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	req := ports.RuntimeRequest{
		ID:        uuid.NewString(),
		Source:    "cli",
		Type:      requestType,
		Payload:   raw,
		Metadata:  map[string]string{handler.MetadataUserID: c.userID},
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}
	return resp, nil
}

func printJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *cli) listCmd() *cobra.Command {
	var (
		category  string
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "list [subpath]",
		Short: "List entries under a category and subpath",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.ListRequest{Category: category, Delimited: !recursive}
			if len(args) == 1 {
				req.Subpath = args[0]
			}
			resp, err := c.exec(cmd, dto.TypeList, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Data)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "inputs, measurementmasks or widthinfojsons (default: namespace root)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "List every key instead of one level")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Download an object by its full key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.exec(cmd, dto.TypeGet, dto.GetRequest{Key: args[0]})
			if err != nil {
				return err
			}
			var obj dto.ObjectResponse
			if err := json.Unmarshal(resp.Data, &obj); err != nil {
				return fmt.Errorf("failed to decode object: %w", err)
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(obj.Data)
				return err
			}
			if err := os.WriteFile(out, obj.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(obj.Data), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func (c *cli) putCmd() *cobra.Command {
	var category, subpath string
	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.PutRequest{Category: category}
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", p, err)
				}
				name := filepath.Base(p)
				if subpath != "" {
					name = subpath + "/" + name
				}
				req.Files = append(req.Files, dto.UploadFile{Name: name, Data: data})
			}

			resp, err := c.exec(cmd, dto.TypePut, req)
			if err != nil {
				return err
			}
			var upload dto.UploadResponse
			if err := json.Unmarshal(resp.Data, &upload); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), upload.Message)
			for _, name := range upload.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "inputs", "Target category")
	cmd.Flags().StringVar(&subpath, "subpath", "", "Folder inside the category")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	var byKey bool
	cmd := &cobra.Command{
		Use:   "delete <relative-path>",
		Short: "Delete an input and its prediction artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.DeleteRequest{RelativePath: args[0]}
			if byKey {
				req = dto.DeleteRequest{Key: args[0]}
			}
			resp, err := c.exec(cmd, dto.TypeDelete, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Data)
		},
	}
	cmd.Flags().BoolVar(&byKey, "key", false, "Treat the argument as a full key ({user}/inputs/...)")
	return cmd
}

func (c *cli) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.exec(cmd, dto.TypeCreateFolder, dto.FolderRequest{Path: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s/\n", args[0])
			return nil
		},
	}
}

func (c *cli) rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Delete a folder and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.exec(cmd, dto.TypeDeleteFolder, dto.FolderRequest{Path: args[0]})
			if err != nil {
				return err
			}
			var out dto.DeleteFolderResponse
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d objects\n", out.Deleted)
			return nil
		},
	}
}

func (c *cli) resultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <relative-path>",
		Short: "Show the prediction artifact keys for an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.exec(cmd, dto.TypeResults, dto.ResultsRequest{RelativePath: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Data)
		},
	}
}
