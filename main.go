package main

import "github.com/CraigKelly/adaptmc/cmd"

// TODO: a block option in RunConfig so YAML files can group nodes the way the
//       built-in bivariate model does

func main() {
	cmd.Execute()
}
