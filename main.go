// File: main.go
package main

import "github.com/bobdodd/auto-a11y-go/cmd"

func main() {
	cmd.Execute()
}
