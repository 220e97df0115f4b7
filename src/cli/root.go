// Package cli holds the foodfinder command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"FoodFinder/src/config"
)

const configFlag = "config"

func newConfigFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		configFlag: &cobraflags.StringFlag{
			Name:  configFlag,
			Value: "",
			Usage: "Path to a YAML config file. Settings can also come from .env and FOODFINDER_* variables",
		},
	}
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "foodfinder",
		Short:         "Nearby restaurant and product discovery with travel distances and ratings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newLoadCommand())
	root.AddCommand(newHashPasswordCommand())
	return root
}

// loadConfig reads the config and installs the JSON logger as the default.
func loadConfig(flags map[string]cobraflags.Flag) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags[configFlag].GetString())
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
