package main

import (
	"github.com/joho/godotenv"

	"ragqa/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
