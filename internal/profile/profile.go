package profile

import (
	"strings"
	"time"
)

// Provider identifies the model vendor passed to the agent via --provider.
type Provider string

const (
	ProviderVolcengine Provider = "volcengine"
	ProviderOpenAI     Provider = "openai"
	ProviderAzure      Provider = "azure"
	ProviderCustom     Provider = "custom"
)

// ProviderInfo describes a provider for display, including where to obtain an API key.
type ProviderInfo struct {
	ID          Provider `json:"id"`
	Name        string   `json:"name"`
	KeyHelpURL  string   `json:"keyHelpUrl,omitempty"`
	KeyHelpText string   `json:"keyHelpText,omitempty"`
}

var providers = []ProviderInfo{
	{ID: ProviderVolcengine, Name: "Volcengine", KeyHelpURL: "https://console.volcengine.com/ark", KeyHelpText: "Create an application on the Ark platform to obtain an API key"},
	{ID: ProviderOpenAI, Name: "OpenAI", KeyHelpURL: "https://platform.openai.com/api-keys", KeyHelpText: "Create a new secret key on the API Keys page"},
	{ID: ProviderAzure, Name: "Azure OpenAI", KeyHelpURL: "https://portal.azure.com/", KeyHelpText: "Create an OpenAI resource in the Azure Portal and copy its key"},
	{ID: ProviderCustom, Name: "Custom", KeyHelpText: "Obtain the key from your custom provider"},
}

// Providers returns the known providers in display order.
func Providers() []ProviderInfo {
	return append([]ProviderInfo(nil), providers...)
}

// Info returns display information for p. Unknown providers fall back to their raw id.
func (p Provider) Info() ProviderInfo {
	for _, pi := range providers {
		if pi.ID == p {
			return pi
		}
	}
	return ProviderInfo{ID: p, Name: string(p)}
}

// Known reports whether p is one of the enumerated providers.
func (p Provider) Known() bool {
	for _, pi := range providers {
		if pi.ID == p {
			return true
		}
	}
	return false
}

// Profile is a named configuration used to launch the agent.
// JSON names match the launcher's configs.json format.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon,omitempty"`
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	APIKey       string   `json:"apiKey"`
	UseConda     bool     `json:"useConda"`
	CondaEnvName string   `json:"condaEnvName"`
	WorkingDir   string   `json:"workingDir"`
	ExtraArgs    string   `json:"extraArgs"`
	IsDefault    bool     `json:"isDefault"`
	AutoClose    bool     `json:"autoClose"`
	Notes        string   `json:"notes"`
	LastUsed     string   `json:"lastUsed"`
	UseCount     int      `json:"useCount"`
}

// LastUsedLayout is the date format stored in Profile.LastUsed.
const LastUsedLayout = "2006-01-02"

// Matches reports whether the profile passes a search term (name or model,
// case-insensitive) and an optional provider filter.
func (p Profile) Matches(term string, provider Provider) bool {
	term = strings.ToLower(term)
	if !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.Model), term) {
		return false
	}
	return provider == "" || p.Provider == provider
}

// Stats summarises a profile collection.
type Stats struct {
	Total        int `json:"total"`
	DefaultCount int `json:"defaultCount"`
	RecentCount  int `json:"recentCount"`
}

// recentDays is how many whole days back a last-used date counts as recent.
const recentDays = 7

// ComputeStats counts profiles, defaults, and profiles used within the last week.
func ComputeStats(ps []Profile, now time.Time) Stats {
	st := Stats{Total: len(ps)}
	for _, p := range ps {
		if p.IsDefault {
			st.DefaultCount++
		}
		if p.LastUsed == "" {
			continue
		}
		t, err := time.ParseInLocation(LastUsedLayout, p.LastUsed, now.Location())
		if err != nil {
			continue
		}
		if int(now.Sub(t)/(24*time.Hour)) <= recentDays {
			st.RecentCount++
		}
	}
	return st
}
