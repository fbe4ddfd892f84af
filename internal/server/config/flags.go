package config

import (
	"flag"
	"os"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   client base URL
//	-t int      access token TTL, minutes
//	-r int      refresh token TTL, minutes
//	-e int      reset token TTL, minutes
//	-h int      bcrypt hash cost
//	-m string   SMTP address host:port
//	-u string   SMTP user
//	-p string   SMTP password
//	-f string   SMTP from address
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-l", "-t", "-r", "-e", "-h", "-m", "-u", "-p", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.ClientBaseURL, "l", config.ClientBaseURL, "client base URL")

	accessTokenTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access_token_ttl (in minutes)")
	refreshTokenTTL := fs.Int("r", int(config.RefreshTokenTTL.Minutes()), "refresh_token_ttl (in minutes)")
	resetTokenTTL := fs.Int("e", int(config.ResetTokenTTL.Minutes()), "reset_token_ttl (in minutes)")

	fs.IntVar(&config.HashCost, "h", config.HashCost, "bcrypt hash cost")

	fs.StringVar(&config.SMTPAddr, "m", config.SMTPAddr, "SMTP address host:port")
	fs.StringVar(&config.SMTPUser, "u", config.SMTPUser, "SMTP user")
	fs.StringVar(&config.SMTPPassword, "p", config.SMTPPassword, "SMTP password")
	fs.StringVar(&config.SMTPFrom, "f", config.SMTPFrom, "SMTP from address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTokenTTL) * time.Minute
	config.RefreshTokenTTL = time.Duration(*refreshTokenTTL) * time.Minute
	config.ResetTokenTTL = time.Duration(*resetTokenTTL) * time.Minute
}
