// Package cmd provides the command-line interface for WebHarvest.
// It handles flag parsing, configuration loading, and crawl execution.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"webharvest/internal/config"
	"webharvest/internal/crawler"
	"webharvest/internal/logging"
	"webharvest/internal/parser"
	"webharvest/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

var rootCmd = &cobra.Command{
	Use:   "webharvest [URL]",
	Short: "A resilient single-site web crawler",
	Long: `WebHarvest crawls a site from a seed URL with per-domain rate
limiting and circuit breaking, retries transient failures with
exponential backoff, and filters near-duplicate content by similarity
fingerprint. Every visit is recorded in a SQLite session log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webharvest.yml)")
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl scope
	rootCmd.Flags().IntP("concurrency", "c", 4, "Number of concurrent workers")
	rootCmd.Flags().Int("max-depth", 2, "Maximum link depth from the seed")
	rootCmd.Flags().IntP("limit", "l", 0, "Stop after N accepted pages (0=unlimited)")
	rootCmd.Flags().Duration("deadline", 0, "Wall-clock limit for the whole run (0=none)")

	// HTTP behavior
	rootCmd.Flags().DurationP("timeout", "t", 30*time.Second, "Per-attempt HTTP timeout")
	rootCmd.Flags().StringP("user-agent", "u", "WebHarvest/1.0", "HTTP User-Agent header")
	rootCmd.Flags().Bool("ignore-robots", false, "Ignore robots.txt rules")

	// Politeness
	rootCmd.Flags().DurationP("delay", "r", 100*time.Millisecond, "Minimum delay between requests to one domain")
	rootCmd.Flags().Int("per-domain-max", 2, "Maximum simultaneous requests per domain")

	// Retry and breaker tuning
	rootCmd.Flags().Int("retry-tries", 3, "Attempts before a task is failed")
	rootCmd.Flags().Int("breaker-threshold", 5, "Consecutive failures before a domain is circuit-broken")

	// Duplicate detection
	rootCmd.Flags().Int("similarity-threshold", 3, "Maximum Hamming distance for near-duplicate pages")

	// URL filtering
	rootCmd.Flags().StringSlice("include-patterns", []string{}, "Regex patterns for URLs to include")
	rootCmd.Flags().StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")
	rootCmd.Flags().Bool("follow-external-hosts", false, "Allow crawling beyond the seed host")
	rootCmd.Flags().Bool("resume", false, "Skip URLs already visited in prior sessions")

	// Storage and logging
	rootCmd.Flags().StringP("database", "d", "./webharvest.db", "Path to SQLite database file")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-file", "", "Mirror logs to a size-rotated file")
	rootCmd.Flags().BoolP("quiet", "q", false, "Suppress log output on stderr")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"concurrency", "concurrency"},
		{"max_depth", "max-depth"},
		{"max_pages", "limit"},
		{"session_deadline", "deadline"},
		{"connection_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"ignore_robots", "ignore-robots"},
		{"request_delay", "delay"},
		{"per_domain_max", "per-domain-max"},
		{"retry_tries", "retry-tries"},
		{"breaker_threshold", "breaker-threshold"},
		{"similarity_threshold", "similarity-threshold"},
		{"include_patterns", "include-patterns"},
		{"exclude_patterns", "exclude-patterns"},
		{"follow_external_hosts", "follow-external-hosts"},
		{"resume_across_sessions", "resume"},
		{"database_path", "database"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
		{"quiet", "quiet"},
	}
	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in the config file and WH_-prefixed environment
// variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("webharvest")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	if err := checkUnknownKeys(viper.ConfigFileUsed()); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(args) > 0 {
		cfg.SeedURL = args[0]
	}
	applyRobotsOverride(cfg)

	if showConfig {
		return showCurrentConfig(cfg)
	}

	if cfg.SeedURL == "" {
		return fmt.Errorf("%w\nUsage: %s [URL]", config.ErrNoSeedURL, os.Args[0])
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logClose, err := logging.Setup(logging.Options{
		Level:      viper.GetString("log_level"),
		FilePath:   viper.GetString("log_file"),
		MaxSizeMB:  100,
		MaxBackups: 5,
		Quiet:      viper.GetBool("quiet"),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logClose.Close() }()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	sched, err := crawler.NewScheduler(cfg, store, parser.New())
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleSignals(ctx, sched, cancel)

	result, err := sched.Crawl(ctx, cfg.SeedURL)
	if err != nil {
		return err
	}

	printSummary(result)
	return nil
}

// applyRobotsOverride maps the --ignore-robots flag (and WH_IGNORE_ROBOTS)
// onto the config's respect_robots setting.
func applyRobotsOverride(cfg *config.CrawlConfig) {
	if viper.GetBool("ignore_robots") {
		cfg.RespectRobots = false
	}
}

// checkUnknownKeys rejects configuration-file keys that nothing reads,
// so a typo fails startup instead of silently doing nothing.
func checkUnknownKeys(file string) error {
	if file == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config file: %w", err)
	}

	known := config.KnownKeys()
	for _, cliKey := range []string{"ignore_robots", "log_level", "log_file", "quiet"} {
		known[cliKey] = struct{}{}
	}

	for _, key := range v.AllKeys() {
		// Map-valued settings (headers) flatten to dotted keys.
		root := key
		if i := strings.Index(key, "."); i >= 0 {
			root = key[:i]
		}
		if _, ok := known[root]; !ok {
			return fmt.Errorf("unknown configuration key %q in %s", key, file)
		}
	}
	return nil
}

// handleSignals drains the crawl on the first interrupt and aborts
// outright on the second.
func handleSignals(ctx context.Context, sched *crawler.Scheduler, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-ctx.Done():
		return
	case <-sig:
		fmt.Fprintln(os.Stderr, "Interrupt received, draining (press Ctrl-C again to abort)")
		sched.Stop()
	}

	select {
	case <-ctx.Done():
	case <-sig:
		cancel()
	}
}

func printSummary(result *crawler.CrawlResult) {
	c := result.Stats.Counters
	fmt.Printf("Crawl %s %s\n", result.SessionID, result.Stats.State)
	fmt.Printf("  Visited:    %d\n", c.Visited)
	fmt.Printf("  Failed:     %d\n", c.Failed)
	fmt.Printf("  Duplicates: %d\n", c.Duplicate)
	fmt.Printf("  Skipped:    %d\n", c.Skipped)
	fmt.Printf("  Elapsed:    %s\n", result.Stats.Elapsed.Round(time.Millisecond))
}

func showCurrentConfig(cfg *config.CrawlConfig) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: configuration validation failed: %v\n\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current WebHarvest Configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Configuration file search paths: ./webharvest.yml\n")
	fmt.Printf("# Environment variables prefix: WH_\n\n")
	fmt.Print(string(yamlData))

	fmt.Printf("\n# Configuration source priority:\n")
	fmt.Printf("# 1. Command-line arguments (highest priority)\n")
	fmt.Printf("# 2. Environment variables (WH_ prefix)\n")
	fmt.Printf("# 3. Configuration file (webharvest.yml)\n")
	fmt.Printf("# 4. Default values (lowest priority)\n")
	return nil
}
