package main

import "github.com/example/railbot/cmd"

func main() {
	cmd.Execute()
}
