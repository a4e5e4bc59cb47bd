package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pampang/federation/federation/planner"
	"github.com/pampang/federation/gateway"
	"github.com/pampang/federation/logging"
	"github.com/pampang/federation/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "fedplan.yaml"

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(gateway.SampleConfig), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the query planning service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file")
	return cmd
}

// loadGateway composes the configured subgraphs without serving them.
func loadGateway(ctx context.Context, configPath string) (*gateway.Gateway, *gateway.GatewayOption, error) {
	opt, err := gateway.LoadOption(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(opt.Logging, opt.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.NewGateway(ctx, *opt, logger)
	if err != nil {
		return nil, nil, err
	}
	return gw, opt, nil
}

func planFile(p *planner.Planner, path string, opts planner.QueryPlanningOptions) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := gateway.ParseQuery(string(src))
	if err != nil {
		return nil, err
	}
	plan, err := p.Plan(doc, opts)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(plan, "", "  ")
}

func newPlanCmd() *cobra.Command {
	var (
		configPath          string
		queryPath           string
		autoFragmentization bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the query plan of a query file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queryPath == "" {
				return errors.New("--query is required")
			}
			gw, opt, err := loadGateway(cmd.Context(), configPath)
			if err != nil {
				return err
			}

			opts := planner.QueryPlanningOptions{AutoFragmentization: opt.Planning.AutoFragmentization}
			if cmd.Flags().Changed("auto-fragmentization") {
				opts.AutoFragmentization = autoFragmentization
			}
			out, err := planFile(gw.Planner(), queryPath, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file")
	cmd.Flags().StringVarP(&queryPath, "query", "q", "", "path to a file holding the query")
	cmd.Flags().BoolVar(&autoFragmentization, "auto-fragmentization", false, "render repeated selections as fragments")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		configPath  string
		queriesDir  string
		outDir      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Plan every .graphql file of a directory and write the plans as JSON",
		Long:  "Plan every .graphql file of --queries and write one NAME.json plan per query\ninto --out. Nothing is written to --out unless every query plans.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queriesDir == "" || outDir == "" {
				return errors.New("--queries and --out are required")
			}
			gw, opt, err := loadGateway(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			opts := planner.QueryPlanningOptions{AutoFragmentization: opt.Planning.AutoFragmentization}

			n, err := generate(cmd.Context(), gw.Planner(), queriesDir, outDir, concurrency, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "planned %d queries into %s\n", n, outDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file")
	cmd.Flags().StringVar(&queriesDir, "queries", "", "directory of .graphql query files")
	cmd.Flags().StringVar(&outDir, "out", "", "directory the plans are written to")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of queries planned at once")
	return cmd
}

// generate plans the queries of queriesDir concurrently and writes NAME.json
// files into outDir. Plans are staged in a sibling directory and moved into
// outDir only once every query is planned, so a failure leaves outDir as it was.
func generate(ctx context.Context, p *planner.Planner, queriesDir, outDir string, concurrency int, opts planner.QueryPlanningOptions) (int, error) {
	files, err := filepath.Glob(filepath.Join(queriesDir, "*.graphql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}
	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(outDir)), "."+filepath.Base(outDir)+"-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(staging)
	if concurrency <= 0 {
		concurrency = 1
	}

	names := make([]string, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, f := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			out, err := planFile(p, f, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(f), err)
			}
			names[i] = strings.TrimSuffix(filepath.Base(f), ".graphql") + ".json"
			return os.WriteFile(filepath.Join(staging, names[i]), append(out, '\n'), 0o644)
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(outDir, name)); err != nil {
			return 0, err
		}
	}

	return len(files), nil
}
