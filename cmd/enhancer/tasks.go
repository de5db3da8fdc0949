package main

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"product-enhancer/internal/monitor"
	"product-enhancer/internal/taskclient"
	"product-enhancer/pkg/api"

	"github.com/spf13/cobra"
)

var (
	statusWatch  bool
	listWatch    bool
	downloadPath string
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()

		var task *api.Task
		if statusWatch {
			task = watchTask(ctx, args[0])
			if err := ctx.Err(); err != nil {
				return err
			}
		} else {
			var err error
			if task, err = cli.client.Fetch(ctx, args[0]); err != nil {
				return err
			}
		}
		if task == nil {
			return fmt.Errorf("task %s not found", args[0])
		}

		link, _ := cli.client.DownloadURL(task)
		renderTask(c.OutOrStdout(), task, link)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks known to the executor, newest first",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()
		out := c.OutOrStdout()

		if !listWatch {
			renderTasks(out, cli.client.ListAll(ctx))
			return nil
		}

		handle := monitor.WatchList(ctx, cli.client, cli.cfg.PollInterval, func(tasks []api.Task) {
			redrawTasks(out, tasks)
		})
		<-handle.Done()
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <task-id>",
	Short: "Save the result workbook of a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := c.Context()

		task, err := cli.client.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("task %s not found", args[0])
		}
		link, err := cli.client.DownloadURL(task)
		if err != nil {
			return fmt.Errorf("%w: task %s is %s", taskclient.ErrNotDownloadable, task.ID, task.Status)
		}

		dest, err := resultPath(downloadPath, link)
		if err != nil {
			return err
		}
		if err := cli.client.Download(ctx, task.ID, dest); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "saved %s\n", dest)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the executor is reachable",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		if !cli.client.Health(c.Context()) {
			return fmt.Errorf("executor at %s is not reachable", cli.cfg.ExecutorURL)
		}
		fmt.Fprintf(c.OutOrStdout(), "executor at %s is healthy\n", cli.cfg.ExecutorURL)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "follow the task until it finishes")
	listCmd.Flags().BoolVarP(&listWatch, "watch", "w", false, "keep refreshing the list")
	downloadCmd.Flags().StringVarP(&downloadPath, "output", "o", ".", "file or directory to save to")

	rootCmd.AddCommand(statusCmd, listCmd, downloadCmd, healthCmd)
}

// resultPath picks the destination file. When output is a directory the name
// of the result on the executor is kept.
func resultPath(output, link string) (string, error) {
	info, err := os.Stat(output)
	if err != nil {
		if os.IsNotExist(err) && filepath.Ext(output) != "" {
			return output, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := os.MkdirAll(output, os.ModePerm); err != nil {
			return "", err
		}
	} else if !info.IsDir() {
		return output, nil
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid download url '%s': %w", link, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("download url '%s' has no file name", link)
	}
	return filepath.Join(output, name), nil
}
