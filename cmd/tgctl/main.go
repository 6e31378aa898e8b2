// Command tgctl inspects workflow definition files and task graphs from
// the command line: structural validation, topological ordering, readiness
// and dependency-closure queries.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	jsonLogs bool

	rootCmd = &cobra.Command{
		Use:   "tgctl",
		Short: "Inspect and validate task dependency graphs and workflow definitions",
		Long: `tgctl validates workflow definition files, computes execution order and
readiness sets, and answers dependency-closure queries over a definition's
graph. It is a thin command-line front end over the taskgraph engine.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
			if jsonLogs {
				logrus.SetFormatter(&logrus.JSONFormatter{})
			} else {
				logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(depsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
