package main

import "github.com/bryanchriswhite/GraphicsCapture/cmd/graphicscapture/commands"

func main() {
	commands.Execute()
}
