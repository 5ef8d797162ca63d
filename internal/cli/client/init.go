package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func InitCmd() *cobra.Command {
	var actorID string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Configure the noesis CLI",
		Long:  "Stores the actor identity and API URL in the user config directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runInit(actorID, apiURL, outputJSON)
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Actor ID sent with every request")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "API base URL (default: http://localhost:8080)")

	return cmd
}

func runInit(actorID, apiURL string, outputJSON bool) error {
	_ = godotenv.Load()
	if actorID == "" {
		actorID = os.Getenv(envActorID)
	}
	if actorID == "" {
		fmt.Print("Enter actor ID: ")
		reader := bufio.NewReader(os.Stdin)
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read actor ID: %w", err)
		}
		actorID = strings.TrimSpace(input)
	}
	if actorID == "" {
		return fmt.Errorf("actor ID is required")
	}

	if apiURL == "" {
		apiURL = os.Getenv(envAPIURL)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	cfg := &GlobalConfig{ActorID: actorID, APIURL: apiURL}
	if err := SaveGlobalConfig(cfg); err != nil {
		return err
	}

	configPath, _ := GetConfigPath()
	if outputJSON {
		output, _ := json.MarshalIndent(map[string]string{
			"config_path": configPath,
			"actor_id":    actorID,
			"api_url":     apiURL,
		}, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Saved config to %s\n", configPath)
		fmt.Printf("Actor: %s\n", actorID)
		fmt.Printf("API URL: %s\n", apiURL)
	}

	return nil
}
