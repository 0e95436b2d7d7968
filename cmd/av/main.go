package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"assessvault/internal/app"
	"assessvault/internal/config"
	"assessvault/internal/db"
	"assessvault/internal/domain"
	"assessvault/internal/engine"
	"assessvault/internal/logger"
	"assessvault/internal/repo"
	"assessvault/internal/server"
	"assessvault/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "av",
	Short: "assessvault CLI",
	Long: `assessvault keeps equine welfare assessment folders in object storage and turns
assessment JSON into Word documents.
- Folders: one per farm visit; download them as a zip or delete them recursively.
- Documents: a horse list becomes a BCS table, a findings payload becomes a compliance report.
- Workspace: .assessvault holds the activity log and API keys; assessvault.yml holds settings.
- Environment: ASSESSVAULT_* variables (and a .env file in the workspace) override the config file,
  e.g. ASSESSVAULT_STORAGE_BUCKET or ASSESSVAULT_AUTH_JWT_SECRET.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ASSESSVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the activity log")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(foldersCmd())
	rootCmd.AddCommand(urlCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in assessvault.yml: storage backend and bucket, archive limits, server address, auth and logging.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config (file, env and flags merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Storage.SecretAccessKey != "" {
				shown.Storage.SecretAccessKey = "***"
			}
			if shown.Auth.JWTSecret != "" {
				shown.Auth.JWTSecret = "***"
			}
			if viper.GetBool("json") {
				return printJSON(shown)
			}
			out, err := yaml.Marshal(shown)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default assessvault.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func foldersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Browse, download and delete assessment folders",
	}
	cmd.AddCommand(foldersListCmd())
	cmd.AddCommand(foldersDownloadCmd())
	cmd.AddCommand(foldersDeleteCmd())
	return cmd
}

func foldersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List the children of a folder (bucket root by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ListFolders(ctx, prefix)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					type row struct {
						Name        string `json:"name"`
						Path        string `json:"path"`
						Kind        string `json:"kind"`
						Size        int64  `json:"size,omitempty"`
						ContentType string `json:"contentType,omitempty"`
					}
					rows := make([]row, 0, len(entries))
					for _, en := range entries {
						r := row{Name: en.Name, Path: en.Path, Kind: en.Kind.String()}
						if en.File != nil {
							r.Size, r.ContentType = en.File.Size, en.File.ContentType
						}
						rows = append(rows, r)
					}
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Kind", "Size", "Content Type"})
				for _, en := range entries {
					size, ctype := "", ""
					if en.File != nil {
						size = fmt.Sprint(en.File.Size)
						ctype = en.File.ContentType
					}
					tw.AppendRow(table.Row{en.Name, en.Kind.String(), size, ctype})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func foldersDownloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <folder>",
		Short: "Download a folder tree as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DownloadFolder(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				target := out
				if target == "" {
					target = res.Filename
				}
				if err := os.WriteFile(target, res.Data, 0o644); err != nil {
					return err
				}
				summary := map[string]any{
					"file":      target,
					"bytes":     len(res.Data),
					"files":     len(res.Files),
					"converted": res.Converted,
					"skipped":   res.Skipped,
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("wrote %s (%d files, %d converted, %d skipped)\n", target, len(res.Files), res.Converted, len(res.Skipped))
				for _, s := range res.Skipped {
					fmt.Println("  skipped:", s)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <folder>.zip)")
	return cmd
}

func foldersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <folder>",
		Short: "Delete a folder and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.DeleteFolder(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Deleted"})
				for _, p := range res.DeletedItems {
					tw.AppendRow(table.Row{p})
				}
				tw.AppendFooter(table.Row{fmt.Sprintf("%d items", res.Count)})
				tw.Render()
				return nil
			})
		},
	}
}

func urlCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Issue a signed download URL for one object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SignedURL(ctx, args[0], ttl, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"url": u.URL, "expiresIn": int(u.ExpiresIn / time.Second)})
				}
				fmt.Println(u.URL)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime (default storage.signed_url_ttl)")
	return cmd
}

func docCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Render assessment JSON as .docx",
	}
	cmd.AddCommand(docGenerateCmd("horses", "Render a horse list as a BCS table", engine.HorseTableFilename,
		func(e engine.Engine) func(context.Context, []byte, string) (engine.Document, error) { return e.GenerateHorseTable }))
	cmd.AddCommand(docGenerateCmd("report", "Render a compliance report", engine.ReportFilename,
		func(e engine.Engine) func(context.Context, []byte, string) (engine.Document, error) { return e.GenerateReport }))
	cmd.AddCommand(docConvertCmd())
	return cmd
}

func docGenerateCmd(use, short, defaultOut string, pick func(engine.Engine) func(context.Context, []byte, string) (engine.Document, error)) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(in)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := pick(e)(ctx, data, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return writeDocument(doc, out)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "-", "input JSON file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", defaultOut, "output .docx file")
	return cmd
}

func docConvertCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "convert <path>",
		Short: "Render a stored JSON object as .docx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.ConvertObject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return writeDocument(doc, out)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output .docx file (default derived from the object name)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP API",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a key for --actor-id; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only keys for this actor")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for the HTTP API",
	}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var ttl time.Duration
	var roles []string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a JWT for --actor-id with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, exp, err := server.IssueToken(cfg.Auth.JWTSecret, viper.GetString("actor-id"), roles, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_at": exp.Format(time.RFC3339)})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
		Long:  "Every download, delete, signed URL, generated document and API key change, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, folder string
	var follow bool
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, repo.EventFilter{Type: evtType, Folder: storage.Clean(folder)})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(nonNil(events)); err != nil {
						return err
					}
				} else {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Time", "Type", "Folder", "Actor", "Payload"})
					for _, evt := range events {
						tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.Folder, evt.ActorID, evt.Payload})
					}
					tw.Render()
				}
				if !follow {
					return nil
				}
				var cursor int64
				if len(events) > 0 {
					cursor = events[0].ID
				}
				return followEvents(ctx, r, cursor, every, evtType, storage.Clean(folder))
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events until interrupted")
	cmd.Flags().DurationVar(&every, "interval", 2*time.Second, "poll interval with --follow")
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&folder, "folder", "", "folder filter")
	return cmd
}

// followEvents polls for events newer than cursor, oldest first.
func followEvents(ctx context.Context, r repo.Repo, cursor int64, every time.Duration, evtType, folder string) error {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		batch, err := r.EventsAfter(ctx, 100, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range batch {
			cursor = evt.ID
			if (evtType != "" && evt.Type != evtType) || (folder != "" && evt.Folder != folder) {
				continue
			}
			if viper.GetBool("json") {
				if err := json.NewEncoder(os.Stdout).Encode(evt); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%d  %s  %-20s %-24s %s  %s\n", evt.ID, evt.TS, evt.Type, evt.Folder, evt.ActorID, evt.Payload)
		}
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			e, conn, err := app.Open(cmd.Context(), viper.GetString("workspace"), cfg, log)
			if err != nil {
				return err
			}
			defer conn.Close()
			if cfg.Auth.JWTSecret == "" {
				if cfg.Auth.DevLogin {
					return fmt.Errorf("auth.dev_login requires auth.jwt_secret (ASSESSVAULT_AUTH_JWT_SECRET)")
				}
				log.Warn("auth.jwt_secret not set; only X-Api-Key authentication will work", nil)
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					DevLogin:  cfg.Auth.DevLogin,
					TokenTTL:  cfg.Auth.TokenTTL,
					Logger:    log,
				},
				Logger: log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			log.Info("serving assessvault API", map[string]any{
				"addr":      cfg.Server.Addr,
				"base_path": cfg.Server.BasePath,
				"backend":   cfg.Storage.Backend,
				"docs":      "/docs",
				"metrics":   "/metrics",
			})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default server.addr)")
	cmd.Flags().String("base-path", "", "API base path (default server.base_path)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

// --- helpers ---

// loadConfig merges assessvault.yml with ASSESSVAULT_* env vars and bound flags.
func loadConfig() (*config.Config, error) {
	return app.LoadConfig(viper.GetString("workspace"), viper.GetString)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level, "console")
	if err != nil {
		return err
	}
	e, conn, err := app.Open(ctx, viper.GetString("workspace"), cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, conn, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger.NewNop())
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e.Repo)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeDocument(doc engine.Document, out string) error {
	if out == "" {
		out = doc.Filename
	}
	if err := os.WriteFile(out, doc.Data, 0o644); err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(map[string]any{"file": out, "kind": doc.Kind.String(), "bytes": len(doc.Data)})
	}
	fmt.Printf("wrote %s (%s, %d bytes)\n", out, doc.Kind, len(doc.Data))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(events []domain.Event) []domain.Event {
	if events == nil {
		return []domain.Event{}
	}
	return events
}
