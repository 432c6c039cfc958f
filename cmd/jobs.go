package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ochronus/gomonsterapi/internal/batch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// paramFlags collects generation parameters from the command line.
type paramFlags struct {
	params     string
	paramsFile string
	prompt     string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.params, "params", "p", "", "Parameters as a JSON object")
	cmd.Flags().StringVarP(&f.paramsFile, "params-file", "f", "", "Read parameters from a JSON or YAML file")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Shortcut for the prompt parameter")
}

// build merges the parameter sources. --prompt wins over a prompt given in
// --params or --params-file.
func (f *paramFlags) build() (map[string]any, error) {
	params := map[string]any{}

	if f.paramsFile != "" {
		data, err := os.ReadFile(f.paramsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file: %w", err)
		}
		// YAML is a superset of JSON, so one decoder serves both.
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("failed to parse params file: %w", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}

	if f.params != "" {
		var inline map[string]any
		if err := json.Unmarshal([]byte(f.params), &inline); err != nil {
			return nil, fmt.Errorf("failed to parse --params: %w", err)
		}
		for k, v := range inline {
			params[k] = v
		}
	}

	if f.prompt != "" {
		params["prompt"] = f.prompt
	}
	return params, nil
}

func newSubmitCmd() *cobra.Command {
	var flags paramFlags
	cmd := &cobra.Command{
		Use:   "submit MODEL",
		Short: "Submit a generation job and print its process id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			params, err := flags.build()
			if err != nil {
				return err
			}
			if err := container.CheckParams(args[0], params); err != nil {
				return err
			}

			resp, err := container.Client.Submit(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return p.ProcessID(resp.ProcessID)
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status PROCESS_ID",
		Short: "Print the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			status, err := container.Client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.Status(args[0], status)
		},
	}
}

func newWaitCmd() *cobra.Command {
	var timeout int
	cmd := &cobra.Command{
		Use:   "wait PROCESS_ID",
		Short: "Wait for a job to finish and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			result, err := container.Client.Wait(cmd.Context(), args[0], time.Duration(timeout)*time.Second)
			if err != nil {
				return err
			}
			return p.Result(result)
		},
	}
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 0, "Seconds to wait, default from config")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var flags paramFlags
	cmd := &cobra.Command{
		Use:   "generate MODEL",
		Short: "Submit a job, wait for it and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			params, err := flags.build()
			if err != nil {
				return err
			}
			if err := container.CheckParams(args[0], params); err != nil {
				return err
			}

			result, err := container.Client.Generate(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return p.Result(result)
		},
	}
	flags.register(cmd)
	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files and print their download URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			urls := make([]string, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(container.Config.BatchWorkers)
			for i, path := range args {
				g.Go(func() error {
					url, err := container.Client.Upload(ctx, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					urls[i] = url
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, path := range args {
				if err := p.URL(path, urls[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newUploadInputCmd() *cobra.Command {
	var filetype string
	cmd := &cobra.Command{
		Use:   "upload-input MODEL FILE",
		Short: "Upload a file as input for a model and print its URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			url, err := container.Client.UploadModelInput(cmd.Context(), args[0], filetype, args[1])
			if err != nil {
				return err
			}
			return p.URL(args[1], url)
		},
	}
	cmd.Flags().StringVar(&filetype, "filetype", "file", "Kind of input, e.g. audio or image")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Run the generation jobs listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer()
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			file, err := batch.Load(args[0])
			if err != nil {
				return err
			}

			size := container.Config.BatchWorkers
			if file.Workers > 0 {
				size = file.Workers
			}
			if workers > 0 {
				size = workers
			}

			container.Logger.Infof("Running %d jobs with %d workers", len(file.Jobs), size)
			runner := batch.NewRunner(container.Client, container.Logger, size, container.CheckParams)
			outcomes := runner.Run(cmd.Context(), file.Jobs)

			if err := p.Outcomes(outcomes); err != nil {
				return err
			}
			if _, failed := batch.Summarize(outcomes); failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel jobs, overrides the batch file and config")
	return cmd
}
