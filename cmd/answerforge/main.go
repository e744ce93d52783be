package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "answerforge"}

	root.AddCommand(serveCMD(), toolsCMD(), migrateCMD())
	_ = root.Execute()
}
