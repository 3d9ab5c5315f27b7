// Package cmd provides the reactiveviews command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// REACTIVE_VIEWS_<SECTION>_<OPTION> environment variables and a YAML file:
// --config, else REACTIVE_VIEWS_CONFIG_FILE, else .reactiveviews.yml in the
// current directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/elisoncampos/reactive-views-sub000/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reactiveviews",
	Short: "Render component islands in server-generated markup",
	Long: `reactiveviews finds component markers such as <UserCard id="7"/> in
markup produced by a template engine, renders them through a JavaScript
rendering backend and replaces each with a hydratable island.

The backend is reached at renderer.url when set; otherwise reactiveviews
starts it from ssr.script and stops it on exit.

Quick Start:
  reactiveviews transform page.html          Render the islands of one page
  reactiveviews resolve UserCard             Show which file a name maps to
  reactiveviews backend start                Start the rendering backend
  reactiveviews serve                        Expose /transform over HTTP`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .reactiveviews.yml, can also use "+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-dir", "", "also write logs to a dated file in this directory")
	rootCmd.PersistentFlags().String("renderer-url", "", "use an already running rendering backend")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":    "log.level",
		"log-format":   "log.format",
		"log-dir":      "log.dir",
		"renderer-url": "renderer.url",
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvConfigFile); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reactiveviews")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
