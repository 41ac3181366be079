package setup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/vadiminshakov/coinbook/config"
)

// GeneratedConfigFile is where the wizard writes its result.
const GeneratedConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("COINBOOK SETUP"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes config.gen.yaml.
func RunTUI() error {
	var (
		apiKey        string
		apiSecret     string
		apiPassphrase string
		baseURL       = config.DefaultKuCoinBaseURL
		partitions    = []string{"main", "trade"}
		notionToken   string
		databaseID    string
		addr          = config.DefaultAddr
		confirm       bool
	)

	// step 1: exchange
	screen("STEP 1: KUCOIN API")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("A read-only API key is enough.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Key").
				Value(&apiKey).
				Validate(required("api key")),
			huh.NewInput().
				Title("API Secret").
				Value(&apiSecret).
				EchoMode(huh.EchoModePassword).
				Validate(required("api secret")),
			huh.NewInput().
				Title("API Passphrase").
				Value(&apiPassphrase).
				EchoMode(huh.EchoModePassword).
				Validate(required("api passphrase")),
			huh.NewInput().
				Title("Base URL").
				Value(&baseURL).
				Validate(validateBaseURL),
			huh.NewMultiSelect[string]().
				Title("Accounts to sync").
				Options(
					huh.NewOption("Main", "main").Selected(true),
					huh.NewOption("Trade", "trade").Selected(true),
				).
				Value(&partitions).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one account")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: notion
	screen("STEP 2: NOTION DATABASE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Integration Token").
				Value(&notionToken).
				EchoMode(huh.EchoModePassword).
				Validate(required("token")),
			huh.NewInput().
				Title("Database ID").
				Description("32 hex characters, dashes optional").
				Value(&databaseID).
				Validate(validateDatabaseID),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: server
	screen("STEP 3: TOOL SERVER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Description("Used by `coinbook serve` (e.g. :3333)").
				Value(&addr).
				Validate(required("address")),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"KuCoin: %s\nAccounts: %s\nNotion database: %s\nServer: %s\n",
		baseURL, strings.Join(partitions, ", "), databaseID, addr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfg := buildConfig(apiKey, apiSecret, apiPassphrase, baseURL, partitions, notionToken, databaseID, addr)
	if err := config.Write(GeneratedConfigFile, cfg); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun: coinbook -config %s health", GeneratedConfigFile, GeneratedConfigFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func buildConfig(apiKey, apiSecret, apiPassphrase, baseURL string, partitions []string, token, databaseID, addr string) config.Config {
	return config.Config{
		KuCoin: config.KuCoin{
			BaseURL:       strings.TrimSpace(baseURL),
			APIKey:        strings.TrimSpace(apiKey),
			APISecret:     strings.TrimSpace(apiSecret),
			APIPassphrase: strings.TrimSpace(apiPassphrase),
			Partitions:    partitions,
		},
		Notion: config.Notion{
			Token:      strings.TrimSpace(token),
			DatabaseID: normalizeDatabaseID(databaseID),
		},
		Server: config.Server{Addr: strings.TrimSpace(addr)},
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

func validateDatabaseID(s string) error {
	if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("not a database id: %w", err)
	}
	return nil
}

// normalizeDatabaseID renders ids in the dashed form Notion returns.
func normalizeDatabaseID(s string) string {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return id.String()
}
