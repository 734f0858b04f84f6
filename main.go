package main

import "github.com/rwtk/fetchr/cmd"

func main() {
	cmd.Execute()
}
