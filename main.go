package main

import "github.com/CosmoTheDev/repomaint-agent/cmd"

func main() {
	cmd.Execute()
}
