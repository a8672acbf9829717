package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "citesearch",
		Short:         "Answer questions from search results with citations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(serveCMD(&cfgPath), askCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
