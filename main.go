package main

import (
	"os"

	"github.com/dealmungchi/dealcrawler/cmd"
	"github.com/dealmungchi/dealcrawler/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
