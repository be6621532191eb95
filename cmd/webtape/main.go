package main

import "github.com/vietddude/webtape/internal/cli"

func main() {
	cli.Execute()
}
