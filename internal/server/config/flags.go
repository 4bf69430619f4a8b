package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
)

var allowedFlags = []string{
	"-a", "-d", "-l", "-s", "-rs", "-vs", "-t", "-r", "-v", "-hc",
	"-redis", "-smtp", "-u", "-p", "-b", "-g", "-e", "-ae", "-an",
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-d string    PostgreSQL DSN
//	-l string    log level
//	-s string    access token secret
//	-rs string   refresh token secret
//	-vs string   recovery token secret
//	-t int       access token validity, minutes
//	-r int       refresh token validity, minutes
//	-v int       recovery token validity, minutes
//	-hc int      bcrypt cost
//	-redis       Redis address for throttling (empty disables it)
//	-smtp        SMTP relay address (empty logs mail instead of sending)
//	-u, -p       S3 root user and password
//	-b, -g, -e   S3 bucket, region and base endpoint
//	-ae, -an     email and name of the seeded admin account
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], allowedFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddress, "a", config.HTTPAddress, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "rs", config.RefreshTokenSecret, "refresh token secret")
	fs.StringVar(&config.RecoveryTokenSecret, "vs", config.RecoveryTokenSecret, "recovery token secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	recoveryTokenValidityDuration := fs.Int("v", int(config.RecoveryTokenValidityDuration.Minutes()), "recovery token validity (in minutes)")

	fs.IntVar(&config.HashCost, "hc", config.HashCost, "bcrypt cost")
	fs.StringVar(&config.RedisAddress, "redis", config.RedisAddress, "redis address")
	fs.StringVar(&config.SMTPAddress, "smtp", config.SMTPAddress, "smtp relay address")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.AdminEmail, "ae", config.AdminEmail, "admin email")
	fs.StringVar(&config.AdminName, "an", config.AdminName, "admin name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.RecoveryTokenValidityDuration = time.Duration(*recoveryTokenValidityDuration) * time.Minute
}
