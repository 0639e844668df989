package domain

import "time"

// ResolvePolicy constrains how a link is turned into a playable source.
type ResolvePolicy struct {
	MaxHeight   int           `mapstructure:"max_height"`
	Container   string        `mapstructure:"container"`
	Download    bool          `mapstructure:"download"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	CookiesFile string        `mapstructure:"cookies_file"`
}

// ResolvedMedia is what the resolver hands back: either a remote stream URL
// or a path to a local file when Local is set.
type ResolvedMedia struct {
	Source   string
	Title    string
	Duration time.Duration
	Local    bool
}

// Quality is passed through to the call engine untouched.
type Quality struct {
	Audio string `mapstructure:"audio" json:"audio"`
	Video string `mapstructure:"video" json:"video"`
}
