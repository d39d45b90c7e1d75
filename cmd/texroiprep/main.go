package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"texroiprep/pkg/config"
	"texroiprep/pkg/logging"
	"texroiprep/pkg/pipeline"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var configPath string
var logLevel string

func init() {
	rootCommand.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	for _, mode := range []pipeline.Mode{
		pipeline.ModeRoiFromRed,
		pipeline.ModeResize,
		pipeline.ModeDegrade,
		pipeline.ModeGrid,
		pipeline.ModeScript,
		pipeline.ModeView,
	} {
		rootCommand.AddCommand(modeCommand(mode))
	}
	rootCommand.AddCommand(batchCommand, initConfigCommand, versionCommand)
}

func main() {
	err := rootCommand.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCommand = &cobra.Command{
	Use:          "texroiprep",
	Short:        "prepare texture-analysis datasets from raster images",
	SilenceUsage: true,
}

var modeHelp = map[pipeline.Mode]string{
	pipeline.ModeRoiFromRed: "build 16-bit masks from red annotations",
	pipeline.ModeResize:     "resize images, optionally keeping the pixel size",
	pipeline.ModeDegrade:    "scale images and add noise, gradient and offset",
	pipeline.ModeGrid:       "partition images into a grid of regions and export statistics",
	pipeline.ModeScript:     "print feature extractor commands for images with regions",
	pipeline.ModeView:       "render stored regions and export the binned selected region",
}

// modeCommand runs one mode on the files named on the command line
func modeCommand(mode pipeline.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   mode.String() + " file...",
		Short: modeHelp[mode],
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			failed := 0
			for _, name := range args {
				if err := p.Process(mode, name); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
					failed++
				}
			}

			switch mode {
			case pipeline.ModeGrid:
				fmt.Fprint(cmd.OutOrStdout(), p.StatisticsTable())
			case pipeline.ModeScript:
				fmt.Fprint(cmd.OutOrStdout(), p.Script())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

var batchCommand = &cobra.Command{
	Use:   "batch mode",
	Short: "run a mode on every matching image of the image folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pipeline.ParseMode(args[0])
		if err != nil {
			return err
		}
		p, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		start := time.Now()
		done, err := p.ProcessAll(mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d files processed in %.2f seconds\n", done, time.Since(start).Seconds())
		return nil
	},
}

var initConfigCommand = &cobra.Command{
	Use:   "init-config [path]",
	Short: "write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "default configuration written to %s\n", path)
		return nil
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "texroiprep", version)
	},
}

// setup loads the configuration and builds the logger and the processor
func setup() (*pipeline.Processor, io.Closer, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	} else if !cfg.Output.Verbose && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}

	log, closer, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		MaxSize: cfg.Logging.MaxSize,
		MaxAge:  cfg.Logging.MaxAge,
	})
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.NewProcessor(cfg, log)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	log.Debug().Str("config", configPath).Msg("configuration loaded")
	return p, closer, nil
}
