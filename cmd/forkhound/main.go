package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bl4ck0w1/forkhound/cmd/forkhound/commands"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "1.0.0"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "forkhound",
	Short:         "ForkHound - AMM fork vulnerability hunter",
	Long:          "ForkHound fingerprints Uniswap V2 style AMM forks, scans their Solidity sources for price-oracle and reserve-manipulation patterns and ranks protocols by risk.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := initLogging(); err != nil {
			return err
		}

		if err := ensureDirs(); err != nil {
			logrus.Warnf("Failed to ensure directories: %v", err)
		}

		if !viper.GetBool("quiet") {
			printBanner()
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.forkhound/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode (no banner, warnings and above only)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("global.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("global.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("global.log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	commands.Version = version

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewHuntCommand())
	rootCmd.AddCommand(commands.NewDiscoverCommand())
	rootCmd.AddCommand(commands.NewOutputCommand())
	rootCmd.AddCommand(commands.NewConfigureCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, buildDate))
	rootCmd.AddCommand(commands.NewCompletionCommand())

	installConsolidatedHelp(rootCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("ForkHound %s (commit %s, built %s)\n", version, commit, buildDate))
}

func initConfig() error {
	setDefaults()
	viper.SetEnvPrefix("FORKHOUND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("acquisition.github_token", "FORKHOUND_ACQUISITION_GITHUB_TOKEN", "GITHUB_TOKEN")

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		viper.AddConfigPath(filepath.Join(home, ".forkhound"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logrus.Warnf("Failed reading config file: %v", err)
		}
	} else {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	d := models.DefaultConfig()
	viper.SetDefault("quiet", false)

	viper.SetDefault("global.log_level", d.Global.LogLevel)
	viper.SetDefault("global.log_format", d.Global.LogFormat)
	viper.SetDefault("global.log_file", d.Global.LogFile)
	viper.SetDefault("global.data_dir", d.Global.DataDir)
	viper.SetDefault("global.repos_dir", d.Global.ReposDir)

	viper.SetDefault("scan.max_concurrent_scans", d.Scan.MaxConcurrentScans)
	viper.SetDefault("scan.file_workers", d.Scan.FileWorkers)
	viper.SetDefault("scan.default_timeout", d.Scan.DefaultTimeout)
	viper.SetDefault("scan.excludes", d.Scan.Excludes)

	viper.SetDefault("discovery.registry_url", d.Discovery.RegistryURL)
	viper.SetDefault("discovery.request_delay", d.Discovery.RequestDelay)
	viper.SetDefault("discovery.hourly_budget", d.Discovery.HourlyBudget)
	viper.SetDefault("discovery.retries", d.Discovery.Retries)
	viper.SetDefault("discovery.retry_delay", d.Discovery.RetryDelay)
	viper.SetDefault("discovery.rate_limit_backoff", d.Discovery.RateLimitBackoff)
	viper.SetDefault("discovery.max_age_days", d.Discovery.MaxAgeDays)
	viper.SetDefault("discovery.max_audits", d.Discovery.MaxAudits)
	viper.SetDefault("discovery.min_tvl", d.Discovery.MinTVL)
	viper.SetDefault("discovery.max_tvl", d.Discovery.MaxTVL)
	viper.SetDefault("discovery.targets_file", d.Discovery.TargetsFile)

	viper.SetDefault("acquisition.github_token", "")
	viper.SetDefault("acquisition.clone_timeout", d.Acquisition.CloneTimeout)
	viper.SetDefault("acquisition.pull_timeout", d.Acquisition.PullTimeout)
	viper.SetDefault("acquisition.max_concurrent", d.Acquisition.MaxConcurrent)
	viper.SetDefault("acquisition.delay", d.Acquisition.Delay)
	viper.SetDefault("acquisition.allowed_hosts", d.Acquisition.AllowedHosts)

	viper.SetDefault("reporting.output_dir", d.Reporting.OutputDir)
	viper.SetDefault("reporting.formats", d.Reporting.Formats)
	viper.SetDefault("reporting.compress", d.Reporting.Compress)
	viper.SetDefault("reporting.max_report_age", d.Reporting.MaxReportAge)

	viper.SetDefault("storage.compression", d.Storage.Compression)
	viper.SetDefault("storage.retention", d.Storage.Retention)
	viper.SetDefault("storage.cache_ttl", d.Storage.CacheTTL)

	viper.SetDefault("api.addr", d.API.Addr)
	viper.SetDefault("api.read_timeout", d.API.ReadTimeout)
	viper.SetDefault("api.write_timeout", d.API.WriteTimeout)

	viper.SetDefault("metrics.enabled", d.Metrics.Enabled)
	viper.SetDefault("metrics.addr", d.Metrics.Addr)
}

func initLogging() error {
	logConfig := utils.LogConfig{
		Level:        viper.GetString("global.log_level"),
		Format:       viper.GetString("global.log_format"),
		FileLocation: viper.GetString("global.log_file"),
		MaxSize:      50,
		MaxBackups:   5,
		MaxAge:       30,
		Compress:     true,
		Quiet:        viper.GetBool("quiet"),
	}

	logger, err := utils.NewLogger(logConfig, "forkhound", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize structured logger, falling back: %v\n", err)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.InfoLevel)
		return nil
	}

	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.Level)
	logrus.SetFormatter(logger.Formatter)

	for _, hooks := range logger.Hooks {
		for _, h := range hooks {
			logrus.AddHook(h)
		}
	}
	return nil
}

func ensureDirs() error {
	dirs := []string{
		viper.GetString("reporting.output_dir"),
		viper.GetString("global.data_dir"),
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := utils.EnsureDir(d); err != nil {
			return fmt.Errorf("ensure dir %s: %w", d, err)
		}
	}
	return nil
}

func printBanner() {
	const banner = `
   ___         _    _  _                  _
  | __|__ _ _ | |__| || |___ _  _ _ _  __| |
  | _/ _ \ '_|| / /| __ / _ \ || | ' \/ _' |
  |_|\___/_|  |_\_\|_||_\___/\_,_|_||_\__,_|

        AMM fork vulnerability hunter %s
  ______________________________________________
`
	fmt.Fprintf(os.Stderr, banner, version)
	fmt.Fprintf(os.Stderr, "Build: %s (%s) | %s/%s\n\n", commit, buildDate, runtime.GOOS, runtime.GOARCH)
}

func installConsolidatedHelp(root *cobra.Command) {
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}

		if !viper.GetBool("quiet") {
			printBanner()
		}

		fmt.Println("USAGE:")
		fmt.Println("  forkhound [command] [global flags]")
		fmt.Println()
		fmt.Println("GLOBAL FLAGS:")
		home, _ := os.UserHomeDir()
		fmt.Printf("  -c, --config string      config file (default is %s)\n", filepath.Join(home, ".forkhound", "config.yaml"))
		fmt.Printf("  -q, --quiet              quiet mode (no banner, warnings and above only)\n")
		fmt.Printf("  -l, --log-level string   log level (debug, info, warn, error, fatal)\n")
		fmt.Printf("      --log-format string  log format (text, json)\n")
		fmt.Printf("      --log-file string    log file path\n")
		fmt.Printf("  -v, --version            version for forkhound\n\n")

		cmds := []*cobra.Command{}
		for _, c := range root.Commands() {
			if c.IsAvailableCommand() && !c.Hidden {
				cmds = append(cmds, c)
			}
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
		fmt.Println("COMMANDS:")
		for _, c := range cmds {
			fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
		}
		fmt.Println()
		fmt.Println("Use \"forkhound [command] --help\" for focused help on any command.")
	})
}

func main() {
	startTime := time.Now()
	Execute()
	logrus.Debugf("Execution completed in %v", time.Since(startTime))
}
