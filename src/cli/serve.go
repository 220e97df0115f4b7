package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"FoodFinder/src/config"
	"FoodFinder/src/db"
	"FoodFinder/src/discovery"
	"FoodFinder/src/distance"
	"FoodFinder/src/handlers"
	"FoodFinder/src/rating"
	"FoodFinder/src/search"
	"FoodFinder/src/token"
	"FoodFinder/src/types"
)

const (
	restaurantsFlag = "restaurants"
	productsFlag    = "products"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	flags := newConfigFlags()
	flags[restaurantsFlag] = &cobraflags.StringFlag{
		Name:  restaurantsFlag,
		Value: "",
		Usage: "Restaurant seed file registering rating targets for the memory rating backend",
	}
	flags[productsFlag] = &cobraflags.StringFlag{
		Name:  productsFlag,
		Value: "",
		Usage: "Product seed file registering rating targets for the memory rating backend",
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, flags[restaurantsFlag].GetString(), flags[productsFlag].GetString())
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, restaurantsSeed, productsSeed string) error {
	var sqlDB *sql.DB
	if cfg.NeedsPostgres() {
		var err error
		if sqlDB, err = db.Connect(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		defer sqlDB.Close()
	}

	var spatial types.SpatialStore
	var elasticStore *db.ElasticStore
	switch cfg.Spatial.Backend {
	case config.BackendElastic:
		es, err := db.NewElasticStore(cfg.Elastic.URL, cfg.Elastic.RestaurantIndex, cfg.Elastic.ProductIndex)
		if err != nil {
			return err
		}
		defer es.Close()
		elasticStore = es.WithLogger(logger)
		spatial = elasticStore
	case config.BackendPostgres:
		spatial = db.NewPostgisStore(sqlDB).WithLogger(logger)
	}

	var ratings rating.Store
	switch cfg.Rating.Backend {
	case config.BackendPostgres:
		rs, err := db.NewRatingStore(sqlDB, cfg.Rating.LockTimeout)
		if err != nil {
			return err
		}
		ratings = rs.WithLogger(logger)
	case config.BackendMemory:
		mem := rating.NewMemoryStore(cfg.Rating.LockTimeout)
		if err := seedMemoryStore(mem, restaurantsSeed, productsSeed); err != nil {
			return err
		}
		ratings = mem
	}

	aggregator := rating.NewAggregator(ratings).WithLogger(logger)
	if elasticStore != nil {
		aggregator = aggregator.WithIndexer(elasticStore)
	}

	enricher := distance.NewClient(distance.Config{
		BaseURL: cfg.Distance.BaseURL,
		APIKey:  cfg.Distance.APIKey,
		Profile: cfg.Distance.Profile,
		Timeout: cfg.Distance.Timeout,
	}, &http.Client{})
	discoverer := discovery.NewService(search.NewService(spatial), enricher).WithLogger(logger)

	auth, err := token.NewAuthenticator(cfg.Auth.SigningKey, cfg.Auth.Users, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.New(discoverer, aggregator).WithLogger(logger), auth.WithLogger(logger))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", "addr", cfg.Server.Addr,
			"spatial_backend", cfg.Spatial.Backend, "rating_backend", cfg.Rating.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedMemoryStore registers every seeded restaurant and product with its
// stored aggregate.
func seedMemoryStore(mem *rating.MemoryStore, restaurantsPath, productsPath string) error {
	if restaurantsPath != "" {
		f, err := os.Open(restaurantsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		restaurants, err := db.ReadRestaurants(f)
		if err != nil {
			return fmt.Errorf("%s: %w", restaurantsPath, err)
		}
		for _, r := range restaurants {
			mem.PutTarget(types.TargetRef{Kind: types.TargetRestaurant, ID: r.ID},
				types.RatingState{Rating: r.Rating, Count: r.ReviewCount})
		}
	}

	if productsPath != "" {
		f, err := os.Open(productsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		products, err := db.ReadProducts(f)
		if err != nil {
			return fmt.Errorf("%s: %w", productsPath, err)
		}
		for _, p := range products {
			mem.PutTarget(types.TargetRef{Kind: types.TargetProduct, ID: p.ID},
				types.RatingState{Rating: p.Rating, Count: p.ReviewCount})
		}
	}
	return nil
}
