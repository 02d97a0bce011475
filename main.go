package main

import "iiifload/cmd"

func main() {
	cmd.Execute()
}
