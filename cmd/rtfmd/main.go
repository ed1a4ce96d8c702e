// Command rtfmd is a thin CLI over the conversion pipeline: convert a
// single file in either direction, or batch-convert a list of files
// into an output directory, using the same Orchestrator a library
// caller would construct.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/legacybridge/rtfmd/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		strict   bool
		noRecov  bool
		template string
		legacy   bool
		verbose  bool
	)

	root := &cobra.Command{
		Use:           "rtfmd",
		Short:         "Convert between RTF and Markdown",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&strict, "strict", true, "treat validation warnings as errors")
	root.PersistentFlags().BoolVar(&noRecov, "no-recovery", false, "disable automatic structural recovery")
	root.PersistentFlags().StringVar(&template, "template", "default", "RTF template: minimal, default, professional, academic")
	root.PersistentFlags().BoolVar(&legacy, "legacy", false, "serialize Markdown as plain ASCII")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	cfgFromFlags := func() pipeline.Config {
		cfg := pipeline.DefaultConfig()
		cfg.StrictValidation = strict
		cfg.AutoRecovery = !noRecov
		cfg.Template = template
		cfg.LegacyMode = legacy
		return cfg
	}

	newOrchestrator := func() *pipeline.Orchestrator {
		level := hclog.Warn
		if verbose {
			level = hclog.Debug
		}
		logger := hclog.New(&hclog.LoggerOptions{Name: "rtfmd", Level: level})
		return pipeline.New(logger)
	}

	root.AddCommand(newConvertCmd(newOrchestrator, cfgFromFlags))
	root.AddCommand(newBatchCmd(newOrchestrator))
	return root
}

func newConvertCmd(newOrchestrator func() *pipeline.Orchestrator, cfgFromFlags func() pipeline.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert a single file, inferring direction from its extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("reading %s: %w", input, err)
			}

			o := newOrchestrator()
			defer o.Shutdown()

			cfg := cfgFromFlags()
			ext := strings.ToLower(filepath.Ext(input))
			var res pipeline.PipelineResult
			switch ext {
			case ".rtf":
				res = o.RTFToMarkdownPipeline(data, cfg)
			case ".md", ".markdown":
				res = o.MarkdownToRTFPipeline(data, cfg)
			default:
				return fmt.Errorf("unrecognized extension %q, expected .rtf, .md, or .markdown", ext)
			}
			if !res.Success {
				return fmt.Errorf("%s (id=%s)", res.Error.Message, res.Error.ID)
			}
			for _, f := range res.Findings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", f.Level, f.Code, f.Message)
			}
			for _, a := range res.Recovery {
				fmt.Fprintf(cmd.ErrOrStderr(), "recovery: %s: %s\n", a.Type, a.Description)
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Output)
				return nil
			}
			return os.WriteFile(output, []byte(res.Output), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
	return cmd
}

func newBatchCmd(newOrchestrator func() *pipeline.Orchestrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <output-dir> <input>...",
		Short: "Convert many files at once into output-dir",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir, inputs := args[0], args[1:]
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", outputDir, err)
			}

			o := newOrchestrator()
			defer o.Shutdown()

			result := o.BatchConvert(inputs, outputDir)
			for _, p := range result.Converted {
				fmt.Fprintf(cmd.OutOrStdout(), "converted: %s\n", p)
			}
			for _, f := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", f.Path, f.Reason)
			}
			if !result.Success {
				return fmt.Errorf("%d of %d files failed", len(result.Failed), len(inputs))
			}
			return nil
		},
	}
	return cmd
}
