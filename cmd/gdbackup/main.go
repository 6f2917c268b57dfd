package main

import "github.com/dl-alexandre/gdbackup/internal/cli"

func main() {
	cli.Execute()
}
