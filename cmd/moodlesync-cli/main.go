package main

import (
	"context"

	"moodlesync/cmd/moodlesync-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
