// Package flagx holds helpers for pre-parsing a subset of command-line flags
// before the main flag set is defined.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigFileEnv is consulted when no config file flag is given.
const ConfigFileEnv = "PATTERM_CONFIG"

// FilterArgs keeps only the allowedFlags (and their values) from args.
//
// Two forms are recognised: "-c conf.yaml" with the value as the next
// argument, and "-config=conf.yaml" with the value attached.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			// a following non-flag argument is this flag's value
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFileFlag returns the config file path passed with -c or -config,
// falling back to the PATTERM_CONFIG environment variable. Other arguments
// are ignored so the caller can parse its own flag set afterwards.
//
// The file format is chosen by the caller from the extension.
func ConfigFileFlag() string {
	var path string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	return path
}
