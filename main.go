package main

import "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/cmd"

func main() {
	cmd.Execute()
}
