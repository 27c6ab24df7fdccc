package main

import (
	"MemoFM/cmd"
	"log"
)

func main() {
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// If we reach here, it means the Cobra command completed successfully
	// (or a long-running server shut down cleanly).
	log.Println("Application command execution finished.")
}
