package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
)

// defaultStages — этапы run start, если не заданы ни --stages,
// ни --job-configs.
var defaultStages = []string{"analyzer", "advisor", "scanner", "evaluator", "reporter", "notifier"}

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage analysis runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunStatusCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunJobsCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var repositoryID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			runs, err := client.ListRuns(cmd.Context(), ListRunsParams{
				RepositoryID: repositoryID,
				Status:       status,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "REPOSITORY", "REVISION", "STATUS", "STAGES", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.RepositoryID.String(),
					r.Revision,
					string(r.Status),
					formatStages(&r),
					formatTime(&r.CreatedAt),
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&repositoryID, "repository-id", "", "Filter by repository ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (CREATED, ACTIVE, FINISHED, FINISHED_WITH_ISSUES, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var revision string
	var configContext string
	var stages []string
	var configsFile string
	var labels []string

	cmd := &cobra.Command{
		Use:   "start REPOSITORY_ID",
		Short: "Start a new analysis run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			params := StartRunParams{
				RepositoryID:  args[0],
				Revision:      revision,
				ConfigContext: configContext,
			}

			if configsFile != "" {
				data, err := os.ReadFile(configsFile)
				if err != nil {
					return fmt.Errorf("read job configs: %w", err)
				}
				if err := json.Unmarshal(data, &params.JobConfigs); err != nil {
					return fmt.Errorf("parse job configs: %w", err)
				}
			} else {
				params.JobConfigs, err = stagesToConfigs(stages)
				if err != nil {
					return err
				}
			}

			if len(labels) > 0 {
				params.Labels = make(map[string]string, len(labels))
				for _, kv := range labels {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid label format %q, expected KEY=VALUE", kv)
					}
					params.Labels[parts[0]] = parts[1]
				}
			}

			run, err := client.StartRun(cmd.Context(), params)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "REPOSITORY", "REVISION", "STATUS", "STAGES", "TRACE_ID"},
				[][]string{{
					run.ID.String(),
					run.RepositoryID.String(),
					run.Revision,
					string(run.Status),
					formatStages(run),
					run.TraceID,
				}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&revision, "revision", "HEAD", "Revision to analyze (branch, tag or commit)")
	cmd.Flags().StringVar(&configContext, "config-context", "", "Configuration repository branch or tag")
	cmd.Flags().StringSliceVar(&stages, "stages", defaultStages, "Pipeline stages to run")
	cmd.Flags().StringVar(&configsFile, "job-configs", "", "JSON file with stage configurations (overrides --stages)")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "Run label as KEY=VALUE (repeatable)")

	return cmd
}

func newRunStatusCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show run status and issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATUS", "REVISION", "STAGES", "ISSUES", "REPORTS", "STARTED", "FINISHED", "ERROR"},
				[][]string{{
					run.ID.String(),
					string(run.Status),
					run.Revision,
					formatStages(run),
					strconv.Itoa(len(run.Issues)),
					strings.Join(run.Reports, ","),
					formatTime(run.StartedAt),
					formatTime(run.FinishedAt),
					run.Error,
				}},
				run,
			)

			if out.JSONMode() || len(run.Issues) == 0 {
				return nil
			}

			issueRows := make([][]string, len(run.Issues))
			for i, issue := range run.Issues {
				issueRows[i] = []string{
					string(issue.Severity),
					string(issue.Worker),
					issue.Source,
					issue.Message,
				}
			}
			out.Table([]string{"SEVERITY", "STAGE", "SOURCE", "MESSAGE"}, issueRows)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an unfinished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			run, err := client.CancelRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			return nil
		},
	}
}

func newRunJobsCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs RUN_ID",
		Short: "List stage jobs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			jobs, err := client.ListJobs(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "STAGE", "STATUS", "CREATED", "FINISHED", "ERROR"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID.String(),
					string(j.Stage),
					string(j.Status),
					formatTime(&j.CreatedAt),
					formatTime(j.FinishedAt),
					j.Error,
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

// formatStages возвращает этапы run, по которым он фактически идёт:
// проверенные, а до анализа — заявленные.
func formatStages(run *domain.Run) string {
	configs := run.JobConfigs
	if run.ResolvedJobConfigs != nil {
		configs = *run.ResolvedJobConfigs
	}
	var names []string
	for _, stage := range configs.Stages() {
		names = append(names, string(stage))
	}
	return strings.Join(names, ",")
}
