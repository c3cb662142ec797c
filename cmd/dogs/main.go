// cmd/dogs/main.go
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dogs/internal/apply"
	"dogs/internal/config"
	"dogs/internal/content"
	"dogs/internal/diff"
	"dogs/internal/logging"
	"dogs/internal/vfs"
	"dogs/internal/watch"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "dogs",
	Short: "dogs is the artifact store and changeset applier for agent workspaces",
	Long: `dogs keeps a versioned, content-addressed store of workspace artifacts and
applies batches of changes described in dogs bundles with all-or-nothing
guarantees: every apply is checkpointed first and rolled back as one unit
on the first failure.`,
}

// store bundles everything a command needs against one open store.
type store struct {
	db      *badger.DB
	repo    *vfs.Repo
	manager *vfs.Manager
	applier *apply.Applier
	logger  *logging.Logger
}

func openStore() (*store, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	cfg := config.Default(dir)
	if loaded, err := config.Load("config.json"); err == nil {
		cfg = loaded
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Store.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	blobs, err := content.NewBlobStore(db, content.Options{Root: cfg.Store.ContentRoot})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content store: %w", err)
	}

	repo := vfs.NewRepo(db, blobs, logger.Logger)
	manager := vfs.NewManager(db, repo, logger.Logger)
	applier := apply.NewApplier(repo, manager, logger.Logger)

	return &store{
		db:      db,
		repo:    repo,
		manager: manager,
		applier: applier,
		logger:  logger,
	}, nil
}

func (s *store) close() {
	s.logger.Sync()
	if err := s.db.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "closing database:", err)
	}
}

func init() {
	var verifyCommand string
	applyCmd := &cobra.Command{
		Use:   "apply [bundle]",
		Short: "Apply a dogs bundle transactionally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.applier.Apply(args[0], verifyCommand)
			if err != nil {
				return err
			}
			if !result.Success {
				color.Red(result.Message)
				os.Exit(1)
			}
			color.Green(result.Message)
			fmt.Println("checkpoint:", result.CheckpointID)
			return nil
		},
	}
	applyCmd.Flags().StringVar(&verifyCommand, "verify", "",
		"verification command to request from the external runner (logged only)")

	var readRef string
	readCmd := &cobra.Command{
		Use:   "read [path]",
		Short: "Print the content of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			data, found, err := s.repo.ReadAt(args[0], readRef)
			if err != nil {
				return err
			}
			if !found {
				color.Yellow("%s: no content", args[0])
				os.Exit(1)
			}
			os.Stdout.Write(data)
			return nil
		},
	}
	readCmd.Flags().StringVar(&readRef, "ref", vfs.RefHead, "commit id to read at")

	historyCmd := &cobra.Command{
		Use:   "history [path]",
		Short: "Show the commit history of an artifact, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			history, err := s.repo.History(args[0])
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			if len(history) == 0 {
				fmt.Println("no commits for", args[0])
				return nil
			}
			for _, info := range history {
				color.Cyan(info.ID)
				fmt.Printf("  %s  %s\n", info.Timestamp.Format("2006-01-02 15:04:05"), info.Message)
			}
			return nil
		},
	}

	diffCmd := &cobra.Command{
		Use:   "diff [path] [refA] [refB]",
		Short: "Diff two versions of an artifact (refB defaults to HEAD)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			refB := vfs.RefHead
			if len(args) == 3 {
				refB = args[2]
			}
			snapshot, err := s.repo.Diff(args[0], args[1], refB)
			if err != nil {
				return err
			}

			result := diff.Compare(snapshot.ContentA, snapshot.ContentB)
			if !result.Changed() {
				fmt.Println("no changes")
				return nil
			}
			for _, line := range result.Lines {
				switch line.Type {
				case diff.Addition:
					color.Green("+ %s", line.Content)
				case diff.Deletion:
					color.Red("- %s", line.Content)
				default:
					fmt.Println(" ", line.Content)
				}
			}
			return nil
		},
	}

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint [label]",
		Short: "Create a checkpoint of the whole store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			cp, err := s.manager.Create(args[0])
			if err != nil {
				return err
			}
			color.Green("checkpoint created: %s", cp.ID)
			return nil
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore [checkpoint-id]",
		Short: "Restore the store to a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.manager.Restore(args[0]); err != nil {
				return err
			}
			color.Green("restored checkpoint %s", args[0])
			return nil
		},
	}

	checkpointsCmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List retained checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			checkpoints, err := s.manager.List()
			if err != nil {
				return err
			}
			for _, cp := range checkpoints {
				color.Cyan(cp.ID)
				fmt.Printf("  %s  %s (%d paths)\n",
					cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Label, len(cp.Frontier))
			}
			return nil
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List all artifact paths known to the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			paths, err := s.repo.Paths()
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Println(path)
			}
			return nil
		},
	}

	var intakeDir string
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the intake directory and apply dropped bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.close()

			dir := intakeDir
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting current directory: %w", err)
				}
				dir = config.Default(cwd).Intake.Dir
			}

			watcher, err := watch.NewWatcher(dir, s.applier, s.logger.Logger)
			if err != nil {
				return fmt.Errorf("starting intake watcher: %w", err)
			}
			defer watcher.Close()

			s.logger.Info("watching for bundles", zap.String("dir", dir))
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	watchCmd.Flags().StringVar(&intakeDir, "dir", "", "intake directory (defaults to .dogs/intake)")

	rootCmd.AddCommand(applyCmd, readCmd, historyCmd, diffCmd,
		checkpointCmd, restoreCmd, checkpointsCmd, pathsCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
