package main

import "github.com/anskarl/swiftlearner/cmd"

func main() {
	cmd.Execute()
}
