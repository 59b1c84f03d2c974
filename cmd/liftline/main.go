package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "liftline",
	Short: "Liftline field operations API",
	Long:  "Liftline serves the field app used by lift installation and service teams: sites, customer complaints and sale leads, kept consistent across every copy the apps and the admin console read.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, defaults plus LIFTLINE_* environment)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
