package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// EnvName returns the environment variable that overrides a flag.
func EnvName(prefix, flag string) string {
	return prefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// EnvOverride sets every flag not given on the command line from its
// environment variable, e.g. WATTSUP_PORT for --port.
func EnvOverride(fs *pflag.FlagSet, prefix string, log logrus.FieldLogger) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		envName := EnvName(prefix, f.Name)
		flagValue := os.Getenv(envName)
		if flagValue == "" {
			return
		}
		if err := fs.Set(f.Name, flagValue); err != nil {
			log.Warnf("Environment variable %q failed to override flag %q with value %q: %v",
				envName, f.Name, flagValue, err)
		} else {
			log.Debugf("Environment variable %q overrides flag %q with %q", envName, f.Name, flagValue)
		}
	})
}
