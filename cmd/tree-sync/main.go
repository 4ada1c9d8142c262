package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/logging"
	syncpkg "github.com/MarkoPoloResearchLab/tree_sync/internal/sync"
)

const (
	envPrefix      = "TREESYNC"
	configBaseName = "tree-sync"
	version        = "0.1.0"
)

// multiValueFlags collect every following non-option argument.
var multiValueFlags = map[string]bool{
	"from":        true,
	"to":          true,
	"ignore":      true,
	"ignore-reg":  true,
	"ignore-list": true,
}

// shorthands maps the single-letter spellings to their long options.
var shorthands = map[string]string{
	"f": "from",
	"t": "to",
	"w": "watch",
	"i": "ignore",
}

var (
	logger  *zap.Logger
	rootCmd = &cobra.Command{
		Use:   "tree-sync -from <dir>... -to <dir>... [flags]",
		Short: "Merge-copy source directory trees into target directories",
		Long: "tree-sync copies every source tree into every target directory, skipping\n" +
			"names matched by ignore rules, and optionally keeps watching the sources.",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := optionsFromConfig()
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				return err
			}

			result, err := syncpkg.RunSync(cmd.Context(), options, logger)
			if err != nil {
				logger.Error("synchronization failed", zap.Error(err))
				return err
			}

			logger.Info("synchronization completed", result.Fields()...)
			return nil
		},
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringArrayP("from", "f", nil, "source directories")
	flags.StringArrayP("to", "t", nil, "target directories")
	flags.BoolP("watch", "w", false, "keep running and re-sync on source changes")
	flags.Bool("soft-merge", false, "never replace target entries of a different type")
	flags.Bool("full-merge", false, "replace conflicting entries and prune target-only entries")
	flags.Bool("ignore-git", false, "never copy .git directories")
	flags.StringArrayP("ignore", "i", nil, "ignore names (wildcards * and ?)")
	flags.StringArray("ignore-reg", nil, "ignore names matching regular expressions")
	flags.StringArray("ignore-list", nil, "files listing ignore names")
	flags.Bool("ignore-none", false, "do not discover ignore declaration files")
	flags.String("ignore-file-name", syncpkg.DefaultDeclarationFileName, "name of discovered ignore declaration files")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", logging.FormatConsole, "log format (console or json)")
	flags.String("config", "", "config file (default ./tree-sync.yaml)")
	flags.BoolP("version", "v", false, "print the version and exit")
	rootCmd.MarkFlagsMutuallyExclusive("soft-merge", "full-merge")

	bindConfig(flags)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(); err != nil {
			return err
		}
		var err error
		logger, err = logging.NewLogger()
		if err != nil {
			return err
		}
		return nil
	}
}

func bindConfig(flags *pflag.FlagSet) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Name == "version" {
			return
		}
		_ = viper.BindPFlag(flag.Name, flag)
	})
}

// readConfigFile loads --config when given, otherwise an optional
// tree-sync.yaml from the working directory.
func readConfigFile() error {
	if path := viper.GetString("config"); path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return errors.Wrapf(err, "expand config path %q", path)
		}
		viper.SetConfigFile(expanded)
		return errors.Wrapf(viper.ReadInConfig(), "read config %q", expanded)
	}

	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

func optionsFromConfig() (syncpkg.Options, error) {
	policy, err := syncpkg.ParseMergePolicy(viper.GetBool("soft-merge"), viper.GetBool("full-merge"))
	if err != nil {
		return syncpkg.Options{}, err
	}
	sources, err := resolvePaths(viper.GetStringSlice("from"))
	if err != nil {
		return syncpkg.Options{}, err
	}
	targets, err := resolvePaths(viper.GetStringSlice("to"))
	if err != nil {
		return syncpkg.Options{}, err
	}
	listFiles, err := resolvePaths(viper.GetStringSlice("ignore-list"))
	if err != nil {
		return syncpkg.Options{}, err
	}

	return syncpkg.Options{
		Sources: sources,
		Targets: targets,
		Ignore: syncpkg.IgnoreConfig{
			Regexps:             viper.GetStringSlice("ignore-reg"),
			Names:               viper.GetStringSlice("ignore"),
			ListFiles:           listFiles,
			IgnoreNone:          viper.GetBool("ignore-none"),
			IgnoreGit:           viper.GetBool("ignore-git"),
			DeclarationFileName: viper.GetString("ignore-file-name"),
		},
		Policy: policy,
		Watch:  viper.GetBool("watch"),
	}, nil
}

// resolvePaths expands ~ and makes local paths absolute. URLs are passed
// through untouched so validation can reject them.
func resolvePaths(paths []string) ([]string, error) {
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.Contains(p, "://") {
			resolved = append(resolved, p)
			continue
		}
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, errors.Wrapf(err, "expand %q", p)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %q", p)
		}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}

// normalizeArgs rewrites the single-dash long options (-from a b -to c)
// into the form cobra parses. Multi-value options take every following
// argument up to the next option.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		name, value, hasValue, ok := splitOption(arg)
		if !ok {
			out = append(out, arg)
			continue
		}
		if hasValue {
			out = append(out, "--"+name+"="+value)
			continue
		}
		if !multiValueFlags[name] {
			out = append(out, "--"+name)
			continue
		}
		consumed := false
		for i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, "--"+name+"="+args[i])
			consumed = true
		}
		if !consumed {
			out = append(out, "--"+name)
		}
	}
	return out
}

// splitOption recognises -name, --name, -name=value and --name=value for
// long options, and the single-dash shorthands listed in shorthands, which
// are reported under their long name. Other single letters are left alone.
func splitOption(arg string) (name, value string, hasValue, ok bool) {
	if !strings.HasPrefix(arg, "-") {
		return "", "", false, false
	}
	single := !strings.HasPrefix(arg, "--")
	trimmed := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	name, value, hasValue = strings.Cut(trimmed, "=")
	if len(name) == 1 {
		long, known := shorthands[name]
		if !single || !known {
			return "", "", false, false
		}
		name = long
	}
	if name == "" {
		return "", "", false, false
	}
	return name, value, hasValue, true
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		if logger == nil {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		stop()
		os.Exit(1)
	}
}
