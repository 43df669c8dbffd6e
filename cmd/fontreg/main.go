package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/logandonley/fontreg/internal/config"
	"github.com/logandonley/fontreg/internal/metrics"
	"github.com/logandonley/fontreg/internal/platform"
	"github.com/logandonley/fontreg/pkg/fm"
)

var (
	cfg     config.Config
	logger  *slog.Logger
	stats   *metrics.Metrics
	plat    platform.Manager
	manager *fm.DefaultManager
)

var flags struct {
	user        bool
	machine     bool
	allUsers    bool
	configFile  string
	verbose     bool
	logFormat   string
	strict      bool
	clearCache  bool
	metricsFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if stats != nil && cfg.MetricsFile != "" {
		if werr := stats.WriteTextfile(cfg.MetricsFile); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write metrics: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fontreg",
	Short: "fontreg installs and uninstalls fonts per user or machine wide",
	Long: `A font installer that copies fonts into the managed font directory,
registers them with the operating system and keeps a registration store,
so fonts can later be found and removed by path, file name or display name.

Examples:
  # Install a font for the current user
  fontreg install ./FiraCode-Regular.ttf

  # Install every font in a directory or archive for all users
  fontreg install --machine ./fonts https://example.com/fonts.zip

  # Uninstall by display name
  fontreg uninstall "Fira Code (OpenType)"

  # Install fonts listed in a file
  fontreg install -f fonts.txt`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// setup layers config file, environment and flags, then builds the logger
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(flags.configFile)
	if err != nil {
		return err
	}

	switch {
	case flags.machine || flags.allUsers:
		cfg.Scope = platform.ScopeMachine.String()
	case flags.user:
		cfg.Scope = platform.ScopeUser.String()
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if flags.strict {
		cfg.OrphanCleanup = false
	}
	if flags.metricsFile != "" {
		cfg.MetricsFile = flags.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Log.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	if cfg.MetricsFile != "" {
		stats = metrics.New()
	}
	plat = platform.New()
	return nil
}

// getManager creates the installer for the configured scope on first use, so
// commands that do not touch the store need no privilege
func getManager() (*fm.DefaultManager, error) {
	if manager != nil {
		return manager, nil
	}
	installer, err := fm.NewInstaller(plat, cfg.ParsedScope(),
		fm.WithLogger(logger),
		fm.WithMetrics(stats),
		fm.WithCopyPolicy(cfg.CopyRetry),
		fm.WithDeletePolicy(cfg.DeleteRetry),
		fm.WithOrphanCleanup(cfg.OrphanCleanup),
	)
	if err != nil {
		return nil, err
	}
	manager = fm.NewManager(installer, fm.WithCacheOptions(cfg.Cache))
	return manager, nil
}

var installCmd = &cobra.Command{
	Use:   "install [fonts...] | -f <file>",
	Short: "Install one or more fonts",
	Long: `Install one or more fonts. Each argument can be a font file, a directory
searched recursively for fonts, a .zip archive or an http(s) URL of one.

Examples:
  # Install a single font
  fontreg install ./Inter.otf

  # Register fonts where they are, without copying
  fontreg install --by-reference /opt/fonts/Inter.otf

  # Install multiple fonts from a list file
  fontreg install -f fonts.txt`,
	Args: func(cmd *cobra.Command, args []string) error {
		fileFlag, _ := cmd.Flags().GetString("file")
		if fileFlag != "" {
			if len(args) > 0 {
				return fmt.Errorf("when using -f flag, no additional arguments should be provided")
			}
			return nil
		}
		if len(args) < 1 {
			return fmt.Errorf("requires at least 1 font when not using -f flag")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		byReference, _ := cmd.Flags().GetBool("by-reference")
		listFile, _ := cmd.Flags().GetString("file")

		var results []fm.Result
		switch {
		case listFile != "":
			file, err := os.Open(listFile)
			if err != nil {
				return fmt.Errorf("opening font list: %w", err)
			}
			defer file.Close()
			fmt.Printf("Installing fonts from %s...\n", listFile)
			results, err = m.InstallFromList(cmd.Context(), file)
			printResults("install", results)
			if err != nil {
				return err
			}
		case byReference:
			results, err = m.InstallByReference(cmd.Context(), args...)
			printResults("install", results)
			if err != nil {
				return err
			}
		default:
			results, err = m.Install(cmd.Context(), args...)
			printResults("install", results)
			if err != nil {
				return err
			}
		}

		maybeClearCache(cmd.Context(), m)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [fonts...]",
	Short: "Uninstall one or more fonts by path, file name or display name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		results, err := m.Uninstall(cmd.Context(), args...)
		printResults("uninstall", results)
		if err != nil {
			return err
		}
		maybeClearCache(cmd.Context(), m)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed fonts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		fonts, err := m.List()
		if err != nil {
			return fmt.Errorf("listing fonts: %w", err)
		}

		if len(fonts) == 0 {
			fmt.Println("No fonts installed")
			return nil
		}

		fmt.Println("Installed fonts:")
		for _, font := range fonts {
			fmt.Printf("  - %s (%s)\n", font.RegistryValueName, font.FontPath)
		}
		return nil
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify [font]",
	Short: "Show how an installed font is registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		id, err := m.Identify(args[0])
		if err != nil {
			return err
		}
		if id == nil {
			fmt.Printf("%s is not installed\n", args[0])
			return nil
		}
		fmt.Printf("Name:      %s\n", id.RegistryValueName)
		fmt.Printf("Path:      %s\n", id.FontPath)
		fmt.Printf("Extension: %s\n", id.FontExtension)
		fmt.Printf("Value:     %s\n", id.RegistryRawValue)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [font]",
	Short: "Show metadata of a font file or installed font",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			m, err := getManager()
			if err != nil {
				return err
			}
			id, err := m.Identify(path)
			if err != nil {
				return err
			}
			if id == nil {
				return fmt.Errorf("%s is neither a font file nor an installed font", path)
			}
			path = id.FontPath
		}

		info, err := fm.Inspect(path)
		if err != nil {
			return err
		}
		style := "regular"
		if info.Italic {
			style = "italic"
		}
		fmt.Printf("Path:            %s\n", info.Path)
		fmt.Printf("Family:          %s\n", info.Family)
		fmt.Printf("PostScript name: %s\n", info.PostScriptName)
		fmt.Printf("Outlines:        %s\n", info.Outlines)
		fmt.Printf("Weight:          %d %s\n", info.Weight, style)
		fmt.Printf("Units per em:    %d\n", info.UnitsPerEm)
		fmt.Printf("Glyphs:          %d\n", info.NumGlyphs)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the OS font cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Stop the font cache, delete its per-user data and restart it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := fm.PurgeFontCache(cmd.Context(), plat, cfg.Cache, logger)
		printCacheReport(report)
		return nil
	},
}

func maybeClearCache(ctx context.Context, m *fm.DefaultManager) {
	if !flags.clearCache {
		return
	}
	printCacheReport(m.PurgeFontCache(ctx))
}

func printCacheReport(report fm.CacheReport) {
	fmt.Printf("Removed %d font cache directories\n", len(report.Removed))
	for _, dir := range report.Failed {
		fmt.Printf("  - could not remove %s\n", dir)
	}
}

// printResults writes one line per font and a summary. Failed fonts do not
// change the exit status.
func printResults(op string, results []fm.Result) {
	var failed, skipped []string
	successful := 0

	for _, res := range results {
		switch res.Outcome {
		case fm.OutcomeInstalled:
			fmt.Printf("Successfully installed %s as %q\n", res.Font, res.Identification.RegistryValueName)
			successful++
		case fm.OutcomeUninstalled:
			fmt.Printf("Successfully uninstalled %s\n", res.Font)
			successful++
		case fm.OutcomeAlreadyInstalled:
			fmt.Printf("Skipped %s (already installed)\n", res.Font)
			skipped = append(skipped, res.Font)
		case fm.OutcomeNotFound:
			fmt.Printf("Skipped %s (not installed)\n", res.Font)
			skipped = append(skipped, res.Font)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", res.Err)
			failed = append(failed, res.Font)
		}
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("Successfully %sed: %d\n", op, successful)
	if len(skipped) > 0 {
		fmt.Printf("Skipped: %d\n", len(skipped))
		for _, name := range skipped {
			fmt.Printf("  - %s\n", name)
		}
	}
	if len(failed) > 0 {
		fmt.Printf("Failed to %s: %d\n", op, len(failed))
		for _, name := range failed {
			fmt.Printf("  - %s\n", name)
		}
	}
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.user, "user", "u", false, "Manage fonts of the current user (default)")
	pf.BoolVarP(&flags.machine, "machine", "m", false, "Manage fonts for all users")
	pf.BoolVar(&flags.allUsers, "all-users", false, "Alias for --machine")
	_ = pf.MarkHidden("all-users")
	rootCmd.MarkFlagsMutuallyExclusive("user", "machine")
	rootCmd.MarkFlagsMutuallyExclusive("user", "all-users")
	pf.StringVar(&flags.configFile, "config", "", "Config file (default <user config dir>/fontreg/config.yaml)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVar(&flags.strict, "strict", false, "Never delete unregistered font files on uninstall")
	pf.BoolVar(&flags.clearCache, "clear-cache", false, "Purge the OS font cache after the batch")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	installCmd.Flags().StringP("file", "f", "", "Install fonts listed in a file, one per line")
	installCmd.Flags().Bool("by-reference", false, "Register fonts in place without copying them")
}
