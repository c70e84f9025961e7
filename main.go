package main

import "github.com/ipchat/ipchat/cmd"

func main() {
	cmd.Execute()
}
