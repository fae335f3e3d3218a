package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	engineconfig "example.com/rrcforge/internal/config"
	"example.com/rrcforge/internal/logging"
	"example.com/rrcforge/internal/server"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Port         int          `yaml:"port"`
	StorageDir   string       `yaml:"storageDir"`
	Concurrency  int          `yaml:"concurrency"`
	PackManifest string       `yaml:"packManifest"`
	Packs        []packConfig `yaml:"packs"`
	EngineConfig string       `yaml:"engineConfig"`
	Logs         logConfig    `yaml:"logs"`
}

type packConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Rules string `yaml:"rules"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	cfg.PackManifest = resolvePath(cfg.PackManifest)
	cfg.EngineConfig = resolvePath(cfg.EngineConfig)
	if len(cfg.Packs) == 0 {
		if cfg.PackManifest == "" {
			return cfg, errors.New("no pack manifest configured")
		}
		packs, err := server.LoadPackManifest(cfg.PackManifest)
		if err != nil {
			return cfg, err
		}
		for _, pack := range packs {
			cfg.Packs = append(cfg.Packs, packConfig{ID: pack.ID, Name: pack.Name, Rules: pack.Rules})
		}
	} else {
		for i := range cfg.Packs {
			cfg.Packs[i].Rules = resolvePath(cfg.Packs[i].Rules)
		}
	}
	if len(cfg.Packs) == 0 {
		return cfg, errors.New("no rule packs configured")
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = "info"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile := filepath.Join(cfg.Logs.Directory, "rrcforged.log")
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	if err := logging.InitializeWithWriter(cfg.Logs.Level, io.MultiWriter(os.Stdout, rotator)); err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 120*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logging.Sync()

	engine := engineconfig.Default()
	if cfg.EngineConfig != "" {
		engine, err = engineconfig.Load(cfg.EngineConfig)
		if err != nil {
			log.Fatalf("load engine config: %v", err)
		}
	}

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	packs := make([]server.RulePackRef, len(cfg.Packs))
	for i, pack := range cfg.Packs {
		packs[i] = server.RulePackRef{ID: pack.ID, Name: pack.Name, Rules: pack.Rules}
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:   cfg.StorageDir,
		PackManifest: cfg.PackManifest,
		Packs:        packs,
		Engine:       engine,
		Concurrency:  cfg.Concurrency,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("rrcforged listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("rrcforged stopped")
}
