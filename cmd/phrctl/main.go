package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/patterm/internal/admin"
)

func main() {
	_ = godotenv.Load()

	if err := admin.NewRootCmd(os.Stdout, nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
