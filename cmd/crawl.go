package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/kb-engine/internal/crawl"
)

// newCrawlCmd creates the 'crawl' command tree for starting and managing
// crawl workers.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Start and manage crawl workers",
	}
	cmd.AddCommand(newCrawlStartCmd())
	cmd.AddCommand(newCrawlListCmd())
	cmd.AddCommand(newCrawlStatusCmd())
	cmd.AddCommand(newCrawlLogsCmd())
	cmd.AddCommand(newCrawlStopCmd())
	cmd.AddCommand(newCrawlCleanCmd())
	return cmd
}

func newCrawlStartCmd() *cobra.Command {
	var outputIndex string
	var excludePaths []string

	cmd := &cobra.Command{
		Use:   "start <url> [url...]",
		Short: "Start one crawl worker per seed URL",
		Long: `Derives crawl parameters from each seed URL, renders the worker
configuration, and launches one container per seed. Multiple seeds are
started concurrently; one seed's failure never aborts the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			seeds := make([]crawl.Seed, len(args))
			for i, url := range args {
				seeds[i] = crawl.Seed{
					URL:          url,
					OutputIndex:  outputIndex,
					ExcludePaths: excludePaths,
				}
			}
			results := appInstance.Orchestrator.CrawlMany(cmd.Context(), seeds)
			return printJSON(results)
		},
	}
	cmd.Flags().StringVar(&outputIndex, "output-index", "", "index to write documents into (default derived from the seed)")
	cmd.Flags().StringSliceVar(&excludePaths, "exclude", nil, "path prefixes to exclude from the crawl")
	return cmd
}

func newCrawlListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all crawl workers and their states",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := appInstance.Orchestrator.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}
}

func newCrawlStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one crawl worker's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			job, err := appInstance.Orchestrator.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
}

func newCrawlLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Show a crawl worker's recent output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logs, err := appInstance.Orchestrator.Logs(cmd.Context(), args[0], tail)
			if err != nil {
				return err
			}
			cmd.Println(logs)
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 40, "number of trailing log lines")
	return cmd
}

func newCrawlStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Stop and remove a crawl worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			job, err := appInstance.Orchestrator.Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
}

func newCrawlCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove all completed crawl workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			removed, failures, err := appInstance.Orchestrator.RemoveCompleted(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"removed":  removed,
				"failures": failures,
			})
		},
	}
}
