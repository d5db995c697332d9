package main

import "github.com/preetsinghmakkar/MentorLink/internal/cli"

func main() {
	cli.Execute()
}
