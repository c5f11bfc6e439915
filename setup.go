package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/raine/tix-seo-studio/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runSetupWizard collects the API keys interactively and saves them to the
// config file. Returns true if the server should continue starting.
func runSetupWizard() bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("TIX SEO Studio - First-time Setup"))
	fmt.Println()

	var geminiKey, openaiKey string
	provider := "gemini"
	port := config.DefaultPort

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API Key").
				Description("Get yours at https://aistudio.google.com/apikey").
				Value(&geminiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					return validateGeminiKey(s)
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Image analysis provider").
				Description("Model used to describe product photos before generation").
				Options(
					huh.NewOption("Gemini (default)", "gemini"),
					huh.NewOption("OpenAI", "openai"),
				).
				Value(&provider),
			huh.NewInput().
				Title("HTTP port").
				Value(&port),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API Key").
				Description("Required for the OpenAI image analysis provider").
				Value(&openaiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return provider != "openai" }),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := map[string]string{
		"GEMINI_API_KEY":  geminiKey,
		"VISION_PROVIDER": provider,
		"OPENAI_API_KEY":  openaiKey,
		"PORT":            port,
	}
	configPath, err := config.WriteEnvFile(values, []string{"GEMINI_API_KEY", "VISION_PROVIDER", "OPENAI_API_KEY", "PORT"})
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		waitOnWindows()
		return false
	}

	for k, v := range values {
		if v != "" {
			os.Setenv(k, v)
		}
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	fmt.Println("Starting server...")
	fmt.Println()

	return true
}

// validateGeminiKey validates a Gemini API key against the lightweight
// models list endpoint.
func validateGeminiKey(key string) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	resp, err := resty.New().
		SetTimeout(10*time.Second).
		R().
		SetQueryParam("key", key).
		SetError(&apiErr).
		Get(geminiModelsURL)
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	switch code := resp.StatusCode(); {
	case code == 400 || code == 401 || code == 403:
		if apiErr.Error.Message != "" {
			return errors.New(apiErr.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", code)
	case code != 200:
		return fmt.Errorf("unexpected response (HTTP %d)", code)
	}
	return nil
}

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// fatalWithWait logs a fatal error and waits on Windows before exiting.
func fatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	waitOnWindows()
	os.Exit(1)
}
