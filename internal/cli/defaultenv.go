package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/snapcircle/dmsocket/internal/config"

	"github.com/spf13/cobra"
)

func DefaultEnv() *cobra.Command {
	var baseConfigFile string
	var defaultEnvCmd = &cobra.Command{
		Use:   "defaultenv",
		Short: "Generate full environment var list with defaults",
		Long:  `Generate full dmsocket environment var list with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			conf, _, err := config.GetConfig(nil, baseConfigFile)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			if err = conf.Validate(); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			printEnvVars(os.Stdout, conf)
		},
	}
	defaultEnvCmd.Flags().StringVarP(&baseConfigFile, "base", "b", "", "path to the base config file to use")
	return defaultEnvCmd
}

func printEnvVars(w io.Writer, conf config.Config) {
	values := config.Flatten(conf)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, _ = fmt.Fprintf(w, "%s=%s\n", config.EnvName(key), envValue(values[key]))
	}
}

func envValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
