package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/foreman/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Foreman Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Agent.Runner = ask(scanner, "Runner (claude or anthropic)", cfg.Agent.Runner)
		if cfg.Agent.Runner == "anthropic" {
			cfg.Anthropic.APIKey = ask(scanner, "Anthropic API key", cfg.Anthropic.APIKey)
		} else {
			cfg.Agent.ClaudePath = ask(scanner, "Path to the claude binary", cfg.Agent.ClaudePath)
		}
		cfg.Agent.Model = ask(scanner, "Model", cfg.Agent.Model)

		cfg.Relay.Backend = ask(scanner, "Relay backend (slack or telegram)", cfg.Relay.Backend)
		cfg.Slack.Token = ask(scanner, "Slack bot token (optional)", cfg.Slack.Token)
		cfg.Telegram.Token = ask(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			chat := ask(scanner, "Telegram chat id", strconv.FormatInt(cfg.Telegram.ChatID, 10))
			if n, err := strconv.ParseInt(chat, 10, 64); err == nil {
				cfg.Telegram.ChatID = n
			}
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// ask displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
