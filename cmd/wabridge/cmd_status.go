package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

type gatewayStatus struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
	Info      *struct {
		ID          string `json:"id"`
		Platform    string `json:"platform"`
		DisplayName string `json:"displayName"`
	} `json:"info"`
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	host := cfg.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/status", host, cfg.Server.Port)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("Gateway unreachable at %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status gatewayStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Printf("Error decoding status response: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("wabridge Status")
	fmt.Println()
	if status.Connected {
		fmt.Println("Connection: ✓", status.Status)
		if status.Info != nil {
			fmt.Println("Account:", status.Info.ID)
			fmt.Println("Name:", status.Info.DisplayName)
			fmt.Println("Platform:", status.Info.Platform)
		}
	} else {
		fmt.Println("Connection: ✗", status.Status)
	}
}
