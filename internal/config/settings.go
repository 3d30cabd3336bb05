package config

import (
	"os"
	"sync"

	"github.com/dniswara/wanotify/internal/model"
)

// GatewaySettings is the hot-reloadable part of the configuration: which
// backends are enabled, their credentials, and the preferred gateway for
// notification traffic.
type GatewaySettings struct {
	NotificationGateway model.GatewayID
	CountryCode         string

	Interactive InteractiveSettings
	CloudAPI    CloudAPISettings
	Relay       RelaySettings
}

type InteractiveSettings struct {
	Enabled    bool
	SessionURL string
}

type CloudAPISettings struct {
	Enabled       bool
	BaseURL       string
	Token         string
	PhoneNumberID string
	LanguageCode  string
}

type RelaySettings struct {
	Enabled bool
	BaseURL string
	Token   string
}

func (s CloudAPISettings) Configured() bool {
	return s.Enabled && s.Token != "" && s.PhoneNumberID != ""
}

func (s RelaySettings) Configured() bool {
	return s.Enabled && s.Token != ""
}

// Settings guards the current GatewaySettings behind a mutex so the
// router can re-derive availability on Reload without a restart.
type Settings struct {
	mu   sync.RWMutex
	cur  GatewaySettings
	load func() GatewaySettings
}

// NewSettings captures loadFn and applies it once. Passing nil uses the
// environment loader.
func NewSettings(loadFn func() GatewaySettings) *Settings {
	if loadFn == nil {
		loadFn = LoadGatewaySettings
	}
	return &Settings{cur: loadFn(), load: loadFn}
}

func (s *Settings) Current() GatewaySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Settings) Reload() {
	next := s.load()
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

// LoadGatewaySettings reads the gateway configuration from the
// environment. Interactive is always enabled; it is the last-resort
// backend regardless of configuration.
func LoadGatewaySettings() GatewaySettings {
	return GatewaySettings{
		NotificationGateway: model.GatewayID(os.Getenv("NOTIFICATION_GATEWAY")),
		CountryCode:         getEnv("COUNTRY_CODE", "62"),
		Interactive: InteractiveSettings{
			Enabled:    true,
			SessionURL: getEnv("SESSION_URL", "http://127.0.0.1:3001"),
		},
		CloudAPI: CloudAPISettings{
			Enabled:       getEnvBool("CLOUDAPI_ENABLED", false),
			BaseURL:       getEnv("CLOUDAPI_BASE_URL", "https://graph.facebook.com/v18.0"),
			Token:         os.Getenv("CLOUDAPI_TOKEN"),
			PhoneNumberID: os.Getenv("CLOUDAPI_PHONE_NUMBER_ID"),
			LanguageCode:  getEnv("CLOUDAPI_LANGUAGE", "id"),
		},
		Relay: RelaySettings{
			Enabled: getEnvBool("RELAY_ENABLED", false),
			BaseURL: getEnv("RELAY_BASE_URL", "https://api.fonnte.com"),
			Token:   os.Getenv("RELAY_TOKEN"),
		},
	}
}

func getEnvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
