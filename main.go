package main

import "github.com/khanhnv2901/secora/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
