package main

import (
	"os"
	_ "time/tzdata"

	"github.com/clinicamia/findash/cmd/findashctl/cli"
)

func main() {
	env := cli.NewEnv()
	defer env.Close()
	if err := cli.NewRootCommand(env).Execute(); err != nil {
		env.Close()
		os.Exit(1)
	}
}
