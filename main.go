package main

import "LogFormatPump/internal/cmd"

func main() {
	cmd.Execute()
}
