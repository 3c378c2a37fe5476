package main

import "github.com/codunot/codunot/cmd"

func main() {
	cmd.Execute()
}
