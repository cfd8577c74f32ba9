package redisstream

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultAddr   = "localhost:6379"
	DefaultStream = "chorus.room"
)

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `mapstructure:"redis-enabled"`
	Addr     string `mapstructure:"redis-addr"`
	Stream   string `mapstructure:"redis-stream"`
	Group    string `mapstructure:"redis-group"`
	Consumer string `mapstructure:"redis-consumer"`
}

// AddFlags registers the redis flags on cmd.
func AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("redis-enabled", false, "Mirror room events to Redis Streams")
	f.String("redis-addr", DefaultAddr, "Redis address host:port")
	f.String("redis-stream", DefaultStream, "Redis stream (watermill topic) for room events")
	f.String("redis-group", "chorus-tail", "Redis consumer group")
	f.String("redis-consumer", "tail-1", "Redis consumer name")
}

// SettingsFromViper reads the flags registered by AddFlags.
func SettingsFromViper(v *viper.Viper) Settings {
	return Settings{
		Enabled:  v.GetBool("redis-enabled"),
		Addr:     v.GetString("redis-addr"),
		Stream:   v.GetString("redis-stream"),
		Group:    v.GetString("redis-group"),
		Consumer: v.GetString("redis-consumer"),
	}
}
