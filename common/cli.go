package common

import (
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag describes a configuration flag.
type Flag struct {
	Name        string
	DefValue    interface{}
	Description string
}

// ConfigureCLI configures a Viper environment with flags and envs.
func ConfigureCLI(v *viper.Viper, envPrefix string, flags []Flag, flagSet *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	for _, flag := range flags {
		switch defval := flag.DefValue.(type) {
		case string:
			flagSet.String(flag.Name, defval, flag.Description)
		case bool:
			flagSet.Bool(flag.Name, defval, flag.Description)
		case int:
			flagSet.Int(flag.Name, defval, flag.Description)
		case uint64:
			flagSet.Uint64(flag.Name, defval, flag.Description)
		case time.Duration:
			flagSet.Duration(flag.Name, defval, flag.Description)
		default:
			stdlog.Fatalf("unknown flag type: %T", flag.DefValue)
		}
		v.SetDefault(flag.Name, flag.DefValue)
		if err := v.BindPFlag(flag.Name, flagSet.Lookup(flag.Name)); err != nil {
			stdlog.Fatalf("binding flag %s: %s", flag.Name, err)
		}
	}
}

// ExpandEnvVars expands env vars present in the config.
func ExpandEnvVars(v *viper.Viper, settings map[string]interface{}) {
	for name, val := range settings {
		if str, ok := val.(string); ok {
			v.Set(name, os.ExpandEnv(str))
		}
	}
}

// ConfigureLogging sets up the default logger and raises the given systems
// to info, or debug with log-debug set. With no systems every logger is set.
func ConfigureLogging(v *viper.Viper, systems []string) error {
	format := logging.ColorizedOutput
	if v.GetBool("log-json") {
		format = logging.JSONOutput
	}
	logging.SetupLogging(logging.Config{
		Format: format,
		Level:  logging.LevelError,
		Stdout: true,
	})

	level := logging.LevelInfo
	if v.GetBool("log-debug") {
		level = logging.LevelDebug
	}
	if len(systems) == 0 {
		logging.SetAllLoggers(level)
		return nil
	}

	levels := make(map[string]logging.LogLevel, len(systems))
	for _, s := range systems {
		levels[s] = level
	}
	if err := SetLogLevels(levels); err != nil {
		return fmt.Errorf("set log levels: %s", err)
	}
	return nil
}

// MarshalConfig marshals a *viper.Viper config to JSON.
func MarshalConfig(v *viper.Viper, pretty bool) ([]byte, error) {
	all := v.AllSettings()
	if pretty {
		return json.MarshalIndent(all, "", "  ")
	}
	return json.Marshal(all)
}

// CheckErr ends in a fatal log if err is not nil.
func CheckErr(err error) {
	if err != nil {
		stdlog.Fatal(err)
	}
}

// CheckErrf ends in a fatal log if err is not nil.
func CheckErrf(format string, err error) {
	if err != nil {
		stdlog.Fatalf(format, err)
	}
}

// HandleInterrupt attempts to cleanup while allowing the user to force stop the process.
func HandleInterrupt(cleanup func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	fmt.Println("Gracefully stopping... (press Ctrl+C again to force)")
	cleanup()
	os.Exit(1)
}
