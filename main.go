package main

import "github.com/encodeous/trustmesh/cmd"

func main() {
	cmd.Execute()
}
