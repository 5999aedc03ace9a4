package main

import "github.com/encodeous/overmesh/cmd"

func main() {
	cmd.Execute()
}
