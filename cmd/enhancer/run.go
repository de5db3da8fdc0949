package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"product-enhancer/internal/assembler"
	"product-enhancer/internal/monitor"
	"product-enhancer/internal/prompts"
	"product-enhancer/internal/tabular"
	"product-enhancer/pkg/api"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var previewLocal bool

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the columns and first rows of a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		filename := filepath.Base(args[0])

		var preview *api.PreviewResponse
		if previewLocal {
			doc, err := tabular.Ingest(data, filename, "")
			if err != nil {
				return err
			}
			p := doc.Preview(5)
			preview = &api.PreviewResponse{Columns: p.Columns, Rows: p.Rows, Filename: filename}
		} else {
			preview, err = cli.client.Preview(c.Context(), filename, bytes.NewReader(data))
			if err != nil {
				return err
			}
		}

		renderPreview(c.OutOrStdout(), preview)
		return nil
	},
}

type runOptions struct {
	columns     []string
	attributes  string
	prompts     map[string]string
	generate    bool
	productType string
	apiKey      string
	provider    string
	watch       bool
	output      string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Configure and submit an extraction task, then follow it to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runTask(c, args[0], runOpts)
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewLocal, "local", false, "read the file locally instead of asking the executor")

	runCmd.Flags().StringSliceVarP(&runOpts.columns, "columns", "c", nil, "columns holding the product text")
	runCmd.Flags().StringVarP(&runOpts.attributes, "attributes", "a", "", "attributes to extract, separated by commas or new lines")
	runCmd.Flags().StringToStringVarP(&runOpts.prompts, "prompt", "p", nil, "custom instruction per attribute, as attribute=text")
	runCmd.Flags().BoolVar(&runOpts.generate, "generate-prompts", false, "draft instructions for attributes without one")
	runCmd.Flags().StringVar(&runOpts.productType, "product-type", "", "product category used when drafting instructions")
	runCmd.Flags().StringVar(&runOpts.apiKey, "api-key", "", "model provider key (default $ENHANCER_API_KEY)")
	runCmd.Flags().StringVar(&runOpts.provider, "provider", "", "model provider: deepseek, openai or custom (default $ENHANCER_PROVIDER)")
	runCmd.Flags().BoolVar(&runOpts.watch, "watch", true, "follow the task until it finishes")
	runCmd.Flags().StringVarP(&runOpts.output, "output", "o", "", "directory to save the result to once completed")
	_ = runCmd.MarkFlagRequired("columns")
	_ = runCmd.MarkFlagRequired("attributes")

	rootCmd.AddCommand(previewCmd, runCmd)
}

// assemble turns the flags into a processing config for the given columns.
func assemble(ctx context.Context, columns []string, opts runOptions, synth *prompts.Synthesizer) (api.ProcessingConfig, *prompts.Result, error) {
	a := assembler.New(columns)
	for _, column := range opts.columns {
		if _, err := a.ToggleColumn(column); err != nil {
			return api.ProcessingConfig{}, nil, err
		}
	}

	// Attributes are one per line, the flag also accepts commas.
	if err := a.EditAttributes(strings.ReplaceAll(opts.attributes, ",", "\n")); err != nil {
		return api.ProcessingConfig{}, nil, err
	}
	if err := a.ConfirmAttributes(); err != nil {
		return api.ProcessingConfig{}, nil, err
	}
	for attr, text := range opts.prompts {
		if err := a.SetCustomPrompt(attr, text); err != nil {
			return api.ProcessingConfig{}, nil, err
		}
	}

	a.SetAPIKey(opts.apiKey)
	if err := a.SetProvider(opts.provider); err != nil {
		return api.ProcessingConfig{}, nil, err
	}
	a.SetProductType(opts.productType)

	var synthesis *prompts.Result
	if synth != nil {
		result, err := a.GeneratePrompts(ctx, synth)
		if err != nil {
			if errors.Is(err, prompts.ErrValidation) || errors.Is(err, assembler.ErrValidation) {
				return api.ProcessingConfig{}, nil, err
			}
			// The task can still run with the prompts collected so far.
			slog.Warn("prompt generation failed", "error", err)
		}
		synthesis = &result
	}

	config, err := a.Build()
	return config, synthesis, err
}

func runTask(c *cobra.Command, path string, opts runOptions) error {
	ctx := c.Context()
	out := c.OutOrStdout()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)

	doc, err := tabular.Ingest(data, filename, "")
	if err != nil {
		return err
	}

	if opts.apiKey == "" {
		opts.apiKey = cli.cfg.APIKey
	}
	if opts.provider == "" {
		opts.provider = cli.cfg.Provider
	}

	var synth *prompts.Synthesizer
	if opts.generate {
		synth = prompts.NewSynthesizer(cli.cfg.LLM.Endpoints())
	}

	config, synthesis, err := assemble(ctx, doc.Columns, opts, synth)
	if err != nil {
		return err
	}
	if synthesis != nil {
		renderSynthesis(out, synthesis)
	}

	task, err := cli.client.Submit(ctx, filename, bytes.NewReader(data), config)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "submitted task %s for %s (%d rows)\n", task.ID, filename, len(doc.Rows))

	if !opts.watch {
		return nil
	}

	final := watchTask(ctx, task.ID)
	if err := ctx.Err(); err != nil {
		return err
	}
	if final == nil {
		return fmt.Errorf("task %s disappeared from the executor", task.ID)
	}
	return finish(ctx, c, final, opts.output)
}

// watchTask follows a task with a progress bar and returns its last snapshot.
func watchTask(ctx context.Context, id string) *api.Task {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("⏳ extracting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	var last *api.Task
	handle := monitor.New(cli.client, cli.cfg.PollInterval).Watch(ctx, id, func(task api.Task) {
		last = &task
		_ = bar.Set(task.Progress)
		bar.Describe(fmt.Sprintf("⏳ %s", task.Status))
	})

	select {
	case <-handle.Done():
	case <-ctx.Done():
		handle.Cancel()
		<-handle.Done()
	}
	_ = bar.Finish()

	return last
}

func finish(ctx context.Context, c *cobra.Command, task *api.Task, output string) error {
	out := c.OutOrStdout()
	link, _ := cli.client.DownloadURL(task)
	renderTask(out, task, link)

	switch task.Status {
	case api.TaskError:
		return fmt.Errorf("task %s failed: %s", task.ID, task.ErrorMessage)
	case api.TaskCompleted:
		if output == "" {
			return nil
		}
		dest, err := resultPath(output, link)
		if err != nil {
			return err
		}
		if err := cli.client.Download(ctx, task.ID, dest); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", dest)
	}
	return nil
}
