package cmds

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddPersistentFlags registers the profile store flags shared by every
// command. The logging flags come from clay.
func AddPersistentFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("profile-store", string(profiles.DriverYAML), "Profile store driver (yaml, sqlite, badger)")
	f.String("profile-path", "", "Profile store location (default ~/.chorus/profiles)")
}

// InitConfig wires viper to the persistent flags, the optional
// ~/.chorus/config.yaml and CHORUS_* environment variables.
func InitConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".chorus"))
	}
	v.SetEnvPrefix("CHORUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		return errors.Wrap(err, "could not bind flags")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "could not read config")
		}
	}
	return nil
}

// DefaultLogFile is where logs go while the TUI owns the terminal.
func DefaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chorus.log")
	}
	return filepath.Join(home, ".chorus", "chorus.log")
}

// InitLogger configures the global logger from the glazed logging flags of
// the command being run. The full-screen chat logs to DefaultLogFile unless
// --log-file is given.
func InitLogger(cmd *cobra.Command) error {
	if ownsTerminal(cmd) {
		if f := cmd.Flags().Lookup("log-file"); f != nil && !f.Changed {
			path := DefaultLogFile()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return errors.Wrap(err, "could not create log directory")
			}
			if err := cmd.Flags().Set("log-file", path); err != nil {
				return errors.Wrap(err, "could not set log file")
			}
		}
	}
	return logging.InitLoggerFromCobra(cmd)
}

func ownsTerminal(cmd *cobra.Command) bool {
	if cmd.Name() != "chat" {
		return false
	}
	plain, err := cmd.Flags().GetBool("plain")
	return err == nil && !plain
}

func openStore(v *viper.Viper) (profiles.Store, error) {
	driver := v.GetString("profile-store")
	path := v.GetString("profile-path")
	if path == "" && profiles.Driver(driver) == profiles.DriverSQLite {
		path = filepath.Join(filepath.Dir(profiles.DefaultPath()), "profiles.db")
	}
	return profiles.Open(driver, path)
}
