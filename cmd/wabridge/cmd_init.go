package main

import (
	"fmt"
	"os"

	"wabridge/pkg/config"
)

func initCmd() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists:", configPath)
		return
	}

	if err := config.SaveConfig(configPath, config.DefaultConfig()); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Config written:", configPath)
	fmt.Println("Edit it or set WABRIDGE_* environment variables, then run: wabridge serve")
}
