package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"FoodFinder/src/config"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)

	cfg, err := config.Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Server.Addr, qt.Equals, ":8888")
	c.Assert(cfg.Spatial.Backend, qt.Equals, config.BackendElastic)
	c.Assert(cfg.Rating.Backend, qt.Equals, config.BackendPostgres)
	c.Assert(cfg.Rating.LockTimeout, qt.Equals, 3*time.Second)
	c.Assert(cfg.Distance.Profile, qt.Equals, "driving-car")
	c.Assert(cfg.Elastic.RestaurantIndex, qt.Equals, "restaurants")
}

func TestLoadEnvOverrides(t *testing.T) {
	c := qt.New(t)
	c.Setenv("FOODFINDER_SPATIAL_BACKEND", "postgres")
	c.Setenv("FOODFINDER_DISTANCE_TIMEOUT", "2s")

	cfg, err := config.Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Spatial.Backend, qt.Equals, config.BackendPostgres)
	c.Assert(cfg.Distance.Timeout, qt.Equals, 2*time.Second)
	c.Assert(cfg.NeedsPostgres(), qt.IsTrue)
}

func TestLoadFile(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "foodfinder.yaml")
	err := os.WriteFile(path, []byte(`
rating:
  backend: memory
  lock_timeout: 250ms
auth:
  users:
    alice: "$2a$10$abc"
`), 0o600)
	c.Assert(err, qt.IsNil)

	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Rating.Backend, qt.Equals, config.BackendMemory)
	c.Assert(cfg.Rating.LockTimeout, qt.Equals, 250*time.Millisecond)
	c.Assert(cfg.Auth.Users, qt.DeepEquals, map[string]string{"alice": "$2a$10$abc"})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unknown spatial backend",
			mutate:  func(cfg *config.Config) { cfg.Spatial.Backend = "redis" },
			wantErr: `unknown spatial backend "redis"`,
		},
		{
			name:    "unknown rating backend",
			mutate:  func(cfg *config.Config) { cfg.Rating.Backend = "mongo" },
			wantErr: `unknown rating backend "mongo"`,
		},
		{
			name:    "zero lock timeout",
			mutate:  func(cfg *config.Config) { cfg.Rating.LockTimeout = 0 },
			wantErr: `rating.lock_timeout must be positive, got 0s`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			cfg := &config.Config{
				Spatial: config.SpatialConfig{Backend: config.BackendElastic},
				Rating:  config.RatingConfig{Backend: config.BackendMemory, LockTimeout: time.Second},
			}
			c.Assert(cfg.Validate(), qt.IsNil)

			tt.mutate(cfg)
			c.Assert(cfg.Validate(), qt.ErrorMatches, tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	c := qt.New(t)

	c.Assert((&config.Config{Log: config.LogConfig{Level: "debug"}}).SlogLevel(), qt.Equals, slog.LevelDebug)
	c.Assert((&config.Config{Log: config.LogConfig{Level: "nonsense"}}).SlogLevel(), qt.Equals, slog.LevelInfo)
}
