package cli

import (
	"errors"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/go-extras/go-kit/must"
	"github.com/spf13/cobra"

	"FoodFinder/src/config"
	"FoodFinder/src/db"
	"FoodFinder/src/token"
)

func newMigrateCommand() *cobra.Command {
	flags := newConfigFlags()
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema and the Elasticsearch indices the configured backends use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if cfg.NeedsPostgres() {
				if err := db.Migrate(ctx, cfg.Postgres.DSN, logger); err != nil {
					return err
				}
			}

			if cfg.Spatial.Backend == config.BackendElastic {
				es, err := db.NewElasticStore(cfg.Elastic.URL, cfg.Elastic.RestaurantIndex, cfg.Elastic.ProductIndex)
				if err != nil {
					return err
				}
				defer es.Close()
				return es.WithLogger(logger).EnsureIndices(ctx)
			}
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newLoadCommand() *cobra.Command {
	flags := newConfigFlags()
	flags[restaurantsFlag] = &cobraflags.StringFlag{
		Name:  restaurantsFlag,
		Value: "./materials/restaurants.tsv",
		Usage: "Tab-separated restaurant seed file",
	}
	flags[productsFlag] = &cobraflags.StringFlag{
		Name:  productsFlag,
		Value: "",
		Usage: "Tab-separated product seed file",
	}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load seed restaurants and products into Postgres and Elasticsearch",
		Long: "Load seed restaurants and products into every configured store: Postgres when\n" +
			"either backend is postgres (rating targets and PostGIS rows), and the\n" +
			"Elasticsearch indices when the spatial backend is elastic. Run migrate first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			restaurants, products := flags[restaurantsFlag].GetString(), flags[productsFlag].GetString()

			if cfg.NeedsPostgres() {
				sqlDB, err := db.Connect(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer sqlDB.Close()
				if err := db.NewPostgisStore(sqlDB).WithLogger(logger).LoadData(ctx, restaurants, products); err != nil {
					return err
				}
			}

			if cfg.Spatial.Backend == config.BackendElastic {
				es, err := db.NewElasticStore(cfg.Elastic.URL, cfg.Elastic.RestaurantIndex, cfg.Elastic.ProductIndex)
				if err != nil {
					return err
				}
				defer es.Close()
				es = es.WithLogger(logger)

				if err := es.EnsureIndices(ctx); err != nil {
					return err
				}
				return es.LoadData(ctx, restaurants, products)
			}
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

// bcrypt only looks at the first 72 bytes
const maxPasswordBytes = 72

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the bcrypt hash to put under auth.users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) > maxPasswordBytes {
				return errors.New("password is longer than 72 bytes")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), must.Must(token.HashPassword(args[0])))
			return err
		},
	}
}
