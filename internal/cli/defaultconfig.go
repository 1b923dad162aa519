package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapcircle/dmsocket/internal/config"
	"github.com/snapcircle/dmsocket/internal/tools"

	"github.com/pelletier/go-toml/v2"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var supportedExtensions = []string{"json", "toml", "yaml", "yml"}

func DefaultConfig() *cobra.Command {
	var defaultConfigFile string
	var defaultConfigCmd = &cobra.Command{
		Use:   "defaultconfig",
		Short: "Generate full configuration file with defaults",
		Long:  `Generate full dmsocket configuration file with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeDefaultConfig(defaultConfigFile); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	defaultConfigCmd.Flags().StringVarP(&defaultConfigFile, "config", "c", "config.json", "path to default config file to generate")
	return defaultConfigCmd
}

func writeDefaultConfig(configFile string) error {
	exists, err := tools.PathExists(configFile)
	if err != nil {
		return err
	}
	if exists {
		return errors.New("target file already exists")
	}
	conf := config.DefaultConfig()
	if err = conf.Validate(); err != nil {
		return err
	}
	b, err := renderConfig(conf, filepath.Ext(configFile))
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, b, 0644)
}

// renderConfig encodes conf in a format chosen by file extension.
func renderConfig(conf config.Config, ext string) ([]byte, error) {
	switch strings.TrimPrefix(ext, ".") {
	case "json":
		return json.MarshalIndent(conf, "", "  ")
	case "toml":
		return toml.Marshal(conf)
	case "yaml", "yml":
		return yaml.Marshal(conf)
	default:
		return nil, errors.New("output config file must have one of supported extensions: " + strings.Join(supportedExtensions, ", "))
	}
}
