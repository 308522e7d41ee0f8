package bot

// Config represents the configuration for the bot
type Config struct {
	// Telegram user ids allowed to run maintainer commands
	AdminIDs []int64
	// Long polling timeout in seconds
	UpdateTimeout int
	// Log every Telegram API request
	Debug bool
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() Config {
	return Config{
		UpdateTimeout: 60,
	}
}

func (c Config) isAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
