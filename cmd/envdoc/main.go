package main

import (
	"fmt"
	"os"

	"freightgate/internal/config"
)

func main() {
	fmt.Println("# Freightgate Environment Variables")
	fmt.Println()
	fmt.Println("The gateway supports configuration via environment variables.")
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	cfg := &config.Config{}
	examples := config.EnvExample(cfg)

	for _, example := range examples {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Override HTTP port")
	fmt.Println("export FREIGHTGATE_GATEWAY_HTTP_PORT=9090")
	fmt.Println()
	fmt.Println("# Point at a shared redis")
	fmt.Println("export FREIGHTGATE_GATEWAY_STORAGE_BACKEND=redis")
	fmt.Println("export FREIGHTGATE_GATEWAY_STORAGE_REDIS_ADDR=redis:6379")
	fmt.Println()
	fmt.Println("# Run gateway with env vars")
	fmt.Println("./freightgate -config freightgate.yaml")
	fmt.Println("```")

	os.Exit(0)
}
