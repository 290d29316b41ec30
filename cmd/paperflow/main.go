package main

import "paperflow/cmd/paperflow/cmd"

func main() {
	cmd.Execute()
}
