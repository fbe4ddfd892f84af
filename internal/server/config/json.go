package config

import (
	"encoding/json"
	"os"

	"github.com/DmitriyEfimov15/mobcon-server/internal/flagx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddr            string         `json:"endpoint_addr"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	ClientBaseURL           string         `json:"client_base_url"`
	AccessTokenTTL          timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL         timex.Duration `json:"refresh_token_ttl"`
	ResetTokenTTL           timex.Duration `json:"reset_token_ttl"`
	HashCost                int            `json:"hash_cost"`
	UnverifiedAccountMaxAge timex.Duration `json:"unverified_account_max_age"`
	SMTPAddr                string         `json:"smtp_addr"`
	SMTPUser                string         `json:"smtp_user"`
	SMTPPassword            string         `json:"smtp_password"`
	SMTPFrom                string         `json:"smtp_from"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.ClientBaseURL = c.ClientBaseURL
	config.AccessTokenTTL = c.AccessTokenTTL.Duration
	config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	config.ResetTokenTTL = c.ResetTokenTTL.Duration
	config.HashCost = c.HashCost
	config.UnverifiedAccountMaxAge = c.UnverifiedAccountMaxAge.Duration
	config.SMTPAddr = c.SMTPAddr
	config.SMTPUser = c.SMTPUser
	config.SMTPPassword = c.SMTPPassword
	config.SMTPFrom = c.SMTPFrom
}
