package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/entrhq/crew/pkg/config"
	"github.com/entrhq/crew/pkg/engine"
	"github.com/entrhq/crew/pkg/engine/store"
	"github.com/entrhq/crew/pkg/llm/openai"
	"github.com/entrhq/crew/pkg/llm/tokenizer"
	"github.com/entrhq/crew/pkg/logging"
	"github.com/entrhq/crew/pkg/persona"
	"github.com/entrhq/crew/pkg/types"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "crew",
		Short: "Autonomous coding agents for your repository",
		Long:  "Crew runs autonomous software-writing agents against a remote repository,\none resumable step-based execution per task.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the config file")

	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newPersonasCommand())
	rootCmd.AddCommand(newResumeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "crew.yaml"
	}
	return filepath.Join(home, ".crew", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLite, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return store.NewSQLite(cfg.DBPath)
}

func loadPersonas(cfg *config.Config) (*persona.Registry, error) {
	registry := persona.NewRegistry()
	if cfg.PersonasPath != "" {
		if _, err := os.Stat(cfg.PersonasPath); err == nil {
			if err := registry.LoadFile(cfg.PersonasPath); err != nil {
				return nil, fmt.Errorf("failed to load personas: %w", err)
			}
		}
	}
	return registry, nil
}

// buildEngine wires the full stack: provider, store, personas, worker pool.
// Only commands that actually run steps pay this cost.
func buildEngine(cfg *config.Config, st *store.SQLite) (*engine.Engine, error) {
	providerOpts := []openai.ProviderOption{openai.WithModel(cfg.Model)}
	if cfg.CompletionBaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(cfg.CompletionBaseURL))
	}
	provider, err := openai.NewProvider(cfg.CompletionAPIKey, providerOpts...)
	if err != nil {
		return nil, err
	}

	registry, err := loadPersonas(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger("crew")
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithProvider(provider),
		engine.WithPersonas(registry),
		engine.WithLogger(logger),
	}
	// Token accounting is best effort; the engine runs fine without it.
	if tok, err := tokenizer.New(); err == nil {
		opts = append(opts, engine.WithTokenizer(tok))
	}

	return engine.New(cfg, st, opts...)
}

func newStartCommand() *cobra.Command {
	var (
		agent       string
		title       string
		description string
		priority    string
		labels      []string
		taskID      string
		model       string
		branch      string
		maxSteps    int
		detach      bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an agent on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			e, err := buildEngine(cfg, st)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.Start(cmd.Context(), engine.StartRequest{
				TaskID:      taskID,
				Title:       title,
				Description: description,
				Priority:    priority,
				Labels:      labels,
				AgentName:   agent,
				Model:       model,
				Branch:      branch,
				MaxSteps:    maxSteps,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Execution %s started\n", result.ExecutionID)
			if detach {
				return nil
			}
			return followExecution(cmd.Context(), e, result.ExecutionID)
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "atlas", "agent persona to run")
	cmd.Flags().StringVar(&title, "title", "", "task title (required)")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "task priority")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "task labels")
	cmd.Flags().StringVar(&taskID, "task-id", "", "external task identifier")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&branch, "branch", "", "target branch override")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget override")
	cmd.Flags().BoolVar(&detach, "detach", false, "return immediately instead of following the execution")
	cmd.MarkFlagRequired("title")

	return cmd
}

// followExecution tails an execution's log stream until it reaches a
// terminal state. The CLI process hosts the worker pool, so exiting early
// with --detach leaves the execution unfinished until a `crew resume`.
func followExecution(ctx context.Context, e *engine.Engine, id string) error {
	printed := 0
	for {
		entries, err := e.Logs(ctx, id)
		if err != nil {
			return err
		}
		for ; printed < len(entries); printed++ {
			printLogEntry(entries[printed])
		}

		exec, err := e.Status(ctx, id)
		if err != nil {
			return err
		}
		if exec.Status.IsTerminal() {
			printExecution(exec)
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <execution-id>",
		Short: "Request cancellation of a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.MarkStopped(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Execution %s stopped\n", args[0])
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show one execution, or list recent ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				exec, err := st.GetExecution(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printExecution(exec)
				return nil
			}

			execs, err := st.ListExecutions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAGENT\tTASK\tSTATUS\tSTEP\tSTARTED")
			for _, exec := range execs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					exec.ID, exec.AgentName, exec.TaskTitle, exec.Status,
					exec.CurrentStep, exec.MaxSteps,
					exec.StartedAt.Local().Format("Jan 2 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "how many executions to list")
	return cmd
}

func newLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <execution-id>",
		Short: "Print an execution's log stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListLogs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, entry := range entries {
				printLogEntry(entry)
			}
			return nil
		},
	}
}

func newPersonasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available agent personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := loadPersonas(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROLE")
			for _, name := range registry.Names() {
				p, err := registry.Resolve(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Role)
			}
			return w.Flush()
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Re-schedule executions left running by a previous process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			e, err := buildEngine(cfg, st)
			if err != nil {
				return err
			}
			defer e.Close()

			scheduled, err := e.Resume(cmd.Context())
			if err != nil {
				return err
			}
			if scheduled == 0 {
				fmt.Println("Nothing to resume")
				return nil
			}
			fmt.Printf("Resumed %d execution(s)\n", scheduled)

			// Stay alive until the resumed work finishes; the worker pool
			// lives in this process.
			for {
				running, err := st.ListRunning(cmd.Context())
				if err != nil {
					return err
				}
				if len(running) == 0 {
					return nil
				}
				time.Sleep(time.Second)
			}
		},
	}
}

func printExecution(exec *types.Execution) {
	fmt.Printf("Execution %s\n", exec.ID)
	fmt.Printf("  agent:   %s\n", exec.AgentName)
	fmt.Printf("  task:    %s (%s)\n", exec.TaskTitle, exec.TaskID)
	fmt.Printf("  repo:    %s/%s@%s\n", exec.RepoOwner, exec.RepoName, exec.Branch)
	fmt.Printf("  status:  %s\n", exec.Status)
	fmt.Printf("  step:    %d/%d\n", exec.CurrentStep, exec.MaxSteps)
	fmt.Printf("  tokens:  %d\n", exec.TokensUsed)
	if len(exec.FilesChanged) > 0 {
		fmt.Printf("  files:   %v\n", exec.FilesChanged)
	}
	if exec.CommitID != "" {
		fmt.Printf("  commit:  %s\n", exec.CommitID)
	}
	if exec.Error != "" {
		fmt.Printf("  error:   %s\n", exec.Error)
	}
}

func printLogEntry(entry *types.LogEntry) {
	fmt.Printf("[%s] step %d %-11s %s\n",
		entry.CreatedAt.Local().Format("15:04:05"), entry.Step, entry.Type, entry.Content)
}
