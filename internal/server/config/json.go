package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// Only keys present in the file override the current Config.
type JsonConfig struct {
	HTTPAddress string `json:"http_address"`
	DatabaseDSN string `json:"database_dsn"`
	LogLevel    string `json:"log_level"`

	AccessTokenSecret             string          `json:"access_token_secret"`
	RefreshTokenSecret            string          `json:"refresh_token_secret"`
	RecoveryTokenSecret           string          `json:"recovery_token_secret"`
	AccessTokenValidityDuration   *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration  *timex.Duration `json:"refresh_token_validity_duration"`
	RecoveryTokenValidityDuration *timex.Duration `json:"recovery_token_validity_duration"`
	HashCost                      int             `json:"hash_cost"`

	RecoveryURL     string `json:"recovery_url"`
	RegistrationURL string `json:"registration_url"`

	SMTPAddress  string `json:"smtp_address"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	MailFrom     string `json:"mail_from"`

	RedisAddress          string          `json:"redis_address"`
	LoginAttemptLimit     int             `json:"login_attempt_limit"`
	LoginAttemptWindow    *timex.Duration `json:"login_attempt_window"`
	RecoveryRequestLimit  int             `json:"recovery_request_limit"`
	RecoveryRequestWindow *timex.Duration `json:"recovery_request_window"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	AdminEmail string `json:"admin_email"`
	AdminName  string `json:"admin_name"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags, falling back
// to ACCOUNTS_CONFIG. If none is set, no JSON file is loaded. If the file
// cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		jsonConfigFile = os.Getenv(EnvPrefix + "CONFIG")
	}

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

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddress, c.HTTPAddress)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.RecoveryTokenSecret, c.RecoveryTokenSecret)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.RecoveryTokenValidityDuration, c.RecoveryTokenValidityDuration)
	setInt(&config.HashCost, c.HashCost)

	setString(&config.RecoveryURL, c.RecoveryURL)
	setString(&config.RegistrationURL, c.RegistrationURL)

	setString(&config.SMTPAddress, c.SMTPAddress)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)

	setString(&config.RedisAddress, c.RedisAddress)
	setInt(&config.LoginAttemptLimit, c.LoginAttemptLimit)
	setDuration(&config.LoginAttemptWindow, c.LoginAttemptWindow)
	setInt(&config.RecoveryRequestLimit, c.RecoveryRequestLimit)
	setDuration(&config.RecoveryRequestWindow, c.RecoveryRequestWindow)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.AdminEmail, c.AdminEmail)
	setString(&config.AdminName, c.AdminName)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
