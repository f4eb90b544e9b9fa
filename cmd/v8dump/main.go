// Command v8dump inspects, renders, and round-trips V8 structured-clone
// files from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.NewEntry(logrus.New())

func main() {
	log.Logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
