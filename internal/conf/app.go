package conf

const (
	APP_NAME = "tokengate"
	APP_DESC = "crypto-settled resale gateway for AI model tokens"
)

// Overridden at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	Author    = "unknown"
	Repo      = "https://github.com/tokengate/tokengate"
)
