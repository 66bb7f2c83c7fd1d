package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"surromc/db"
	"surromc/logging"
	"surromc/monitor"
	"surromc/registry"
	"surromc/sim"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
		Path  string `yaml:"path"`
	} `yaml:"log"`
	Registry struct {
		CacheSize int  `yaml:"cache_size"`
		Watch     bool `yaml:"watch"`
	} `yaml:"registry"`
	Models  []registry.ModelSpec `yaml:"models"`
	Studies []sim.StudyConfig    `yaml:"studies"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	logger := logging.New(config.Log.Level, config.Log.Path)
	defer logger.Sync()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 4. Build model registry
	reg, err := registry.New(config.Registry.CacheSize, logger)
	if err != nil {
		logger.Fatal("failed to create registry", zap.Error(err))
	}
	if err := reg.RegisterAll(config.Models); err != nil {
		logger.Fatal("failed to register models", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Registry.Watch {
		if err := reg.Watch(ctx); err != nil {
			logger.Fatal("failed to watch data files", zap.Error(err))
		}
	}

	// 5. Start monitor hub and HTTP server
	hub := monitor.NewHub(logger)
	go hub.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/studies", hub.HandleWS)

	port := config.Http.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		logger.Info("monitor server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("monitor server failed", zap.Error(err))
		}
	}()

	// 6. Run configured studies
	go runStudies(ctx, config, reg, hub, logger)

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}
	logger.Info("exiting")
}

func runStudies(ctx context.Context, config *Config, reg *registry.Registry, hub *monitor.Hub, logger *zap.Logger) {
	for _, studyCfg := range config.Studies {
		if ctx.Err() != nil {
			return
		}

		m, err := reg.Get(studyCfg.Model)
		if err != nil {
			logger.Error("failed to load model",
				zap.String("study", studyCfg.Name),
				zap.String("model", studyCfg.Model),
				zap.Error(err))
			continue
		}

		if spec, ok := findSpec(config.Models, studyCfg.Model); ok {
			err := db.RegisterDataset(spec.Name, spec.InputFile, spec.OutputFile,
				m.Len(), m.InputDim(), m.OutputDim())
			if err != nil {
				logger.Warn("failed to register dataset", zap.String("model", spec.Name), zap.Error(err))
			}
		}

		sampler := sim.NewIndexSampler(m.Inputs(), studyCfg.Seed)
		study := sim.NewStudy(studyCfg, m, sampler, logger)
		study.OnProgress(func(done, total int) {
			hub.PublishProgress(studyCfg.Name, done, total)
		})

		result, err := study.Run(ctx)
		if err != nil {
			logger.Error("study failed", zap.String("study", studyCfg.Name), zap.Error(err))
			continue
		}

		hub.PublishResult(studyCfg.Name, result)
		err = db.SaveStudyResult(db.StudyRecord{
			Study:     studyCfg.Name,
			Model:     studyCfg.Model,
			N:         result.N,
			Failures:  result.Failures,
			Mean:      result.Mean,
			Variance:  result.Variance,
			StdError:  result.StdError,
			TotalCost: result.TotalCost,
			Duration:  result.Duration,
		})
		if err != nil {
			logger.Warn("failed to save study result", zap.String("study", studyCfg.Name), zap.Error(err))
		}
	}
	logger.Info("all studies finished")
}

func findSpec(specs []registry.ModelSpec, name string) (registry.ModelSpec, bool) {
	for _, spec := range specs {
		if spec.Name == name {
			return spec, true
		}
	}
	return registry.ModelSpec{}, false
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
