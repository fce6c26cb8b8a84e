// Package main provides the entry point for the evtxcache CLI application.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/chunk"
	"github.com/dgnsrekt/evtxcache/internal/evtxfile"
	"github.com/dgnsrekt/evtxcache/internal/report"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	output            report.Format
	filter            string
	followChains      bool
	showAllFiles      bool
	copyOutput        bool
	width             uint
	color             bool

	rootCmd = &cobra.Command{
		Use:   "evtxcache [FILE|DIR]",
		Short: "Inspect the template caches of EVTX event logs",
		Long: paragraph(
			fmt.Sprintf("\nLoad every chunk of an EVTX file and list its %s.", keyword("template cache")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && cmd.Name() != configCmdName {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	var err error
	if output, err = report.ParseFormat(viper.GetString("output")); err != nil {
		return err
	}
	filter = viper.GetString("filter")
	followChains = viper.GetBool("follow_chains")
	showAllFiles = viper.GetBool("all")
	width = viper.GetUint("width")

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	color = isTerminal

	// Detect terminal width
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// resolvePaths expands arg into the files to inspect.
func resolvePaths(arg string) ([]string, error) {
	if arg == "" {
		// use the current working dir if no argument was supplied
		arg = "."
	}

	path, err := homedir.Expand(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to expand path: %w", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if !st.IsDir() {
		return []string{path}, nil
	}

	paths, err := evtxfile.Find(path, showAllFiles)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no evtx files found")
	}
	return paths, nil
}

// inspect loads every path and builds its report.
func inspect(paths []string) ([]report.Report, error) {
	reports := make([]report.Report, 0, len(paths))
	for _, path := range paths {
		f, err := evtxfile.Load(path,
			evtxfile.WithLogger(log.Default()),
			evtxfile.WithChunkOptions(chunk.WithFollowChains(followChains)),
		)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report.Build(f).Filter(filter))
	}
	return reports, nil
}

func inspectAndRender(paths []string, w io.Writer) error {
	reports, err := inspect(paths)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	opts := report.RenderOptions{Width: int(width), Color: color} //nolint:gosec
	if err := report.Render(&buf, reports, output, opts); err != nil {
		return err
	}

	if copyOutput {
		// Copy using OSC 52
		termenv.Copy(buf.String())
		// Copy using native system clipboard
		if err := clipboard.WriteAll(buf.String()); err != nil {
			log.Warn("Unable to copy report to clipboard", "error", err)
		}
	}

	if _, err := io.Copy(w, &buf); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	paths, err := resolvePaths(arg)
	if err != nil {
		return err
	}
	return inspectAndRender(paths, os.Stdout)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format (text, yaml, markdown)")
	rootCmd.PersistentFlags().StringP("filter", "f", "", "only list templates whose name fuzzy-matches")
	rootCmd.PersistentFlags().Bool("follow-chains", false, "also cache templates linked from other templates")
	rootCmd.PersistentFlags().UintVarP(&width, "width", "w", 0, "word-wrap at width (markdown output)")
	rootCmd.Flags().BoolP("all", "a", false, "include hidden and ignored files when inspecting a directory")
	rootCmd.PersistentFlags().BoolVarP(&copyOutput, "copy", "c", false, "copy the report to the clipboard")

	// Config bindings
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("filter", rootCmd.PersistentFlags().Lookup("filter"))
	_ = viper.BindPFlag("follow_chains", rootCmd.PersistentFlags().Lookup("follow-chains"))
	_ = viper.BindPFlag("width", rootCmd.PersistentFlags().Lookup("width"))
	_ = viper.BindPFlag("all", rootCmd.Flags().Lookup("all"))

	viper.SetDefault("output", string(report.FormatText))
	viper.SetDefault("width", 0)
	viper.SetDefault("all", false)
	viper.SetDefault("follow_chains", false)
	viper.SetDefault("watch.interval", "1s")

	rootCmd.AddCommand(configCmd, manCmd, watchCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "evtxcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "evtxcache")}, dirs...)
	}

	if c := os.Getenv("EVTXCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("evtxcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("evtxcache")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], "evtxcache.yml")
}
