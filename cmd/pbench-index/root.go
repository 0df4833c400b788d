package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pbench/internal/indexer"
	"pbench/internal/notifications"
	"pbench/internal/store"
	"pbench/internal/templates"
)

type rootOptions struct {
	dumpIndexPatterns bool
	dumpTemplates     bool
	toolData          bool
	reIndex           bool
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts rootOptions

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "pbench-index",
		Short:         "Index queued pbench result tarballs",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dumpIndexPatterns || opts.dumpTemplates {
				return dumpTemplates(cmd, ctx, opts)
			}
			return runIndexer(cmd, ctx, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "C", "", "Configuration file path (default $_PBENCH_SERVER_CONFIG)")
	flags := rootCmd.Flags()
	flags.BoolVarP(&opts.dumpIndexPatterns, "dump-index-patterns", "I", false, "Print the index patterns and exit")
	flags.BoolVarP(&opts.dumpTemplates, "dump-templates", "Q", false, "Print the index templates and exit")
	flags.BoolVarP(&opts.toolData, "tool-data", "T", false, "Index tool data of tarballs queued in TO-INDEX-TOOL")
	flags.BoolVarP(&opts.reIndex, "re-index", "R", false, "Index tarballs queued in TO-RE-INDEX")

	rootCmd.AddCommand(newStatesCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newTestNotifyCommand(ctx))

	return rootCmd
}

func dumpTemplates(cmd *cobra.Command, ctx *commandContext, opts rootOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	set, err := templates.Load(cfg.Indexing.Prefix)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.dumpIndexPatterns {
		if err := set.DumpIndexPatterns(out); err != nil {
			return fmt.Errorf("dump index patterns: %w", err)
		}
	}
	if opts.dumpTemplates {
		if err := set.DumpTemplates(out); err != nil {
			return fmt.Errorf("dump templates: %w", err)
		}
	}
	return nil
}

func runIndexer(cmd *cobra.Command, ctx *commandContext, opts rootOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer st.Close()

	ix, err := indexer.New(cfg, indexer.Dependencies{
		Backend:  st,
		Registry: st,
		Poster:   st,
		Notifier: notifications.NewService(cfg),
	}, indexer.Options{
		ToolData: opts.toolData,
		ReIndex:  opts.reIndex,
		Version:  version,
	}, logger)
	if err != nil {
		return err
	}
	return ix.Run(cmd.Context())
}
