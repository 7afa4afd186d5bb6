package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deusflow/pagepost/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	envFile    string
	configFile string
}

var rootCmd = &cobra.Command{
	Use:   "pagepost",
	Short: "Turn popular subreddit posts into Facebook page posts",
	Long: "pagepost polls a subreddit, classifies each new popular item with an LLM,\n" +
		"writes a short post for eligible topics and publishes it to a Facebook page.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&rootFlags.configFile, "config", "", "optional YAML/JSON/TOML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.Version = version
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{EnvFile: rootFlags.envFile, ConfigFile: rootFlags.configFile})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
