package main

import "os"

func main() {
	if err := newRootCmd(buildFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}
