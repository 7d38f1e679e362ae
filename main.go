package main

import "filigram/cmd"

func main() {
	cmd.Execute()
}
