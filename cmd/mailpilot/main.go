package main

import "github.com/lu-zhengda/mailpilot/internal/cli"

func main() {
	cli.Execute()
}
