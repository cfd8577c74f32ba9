package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/chorus/pkg/eventtap"
	"github.com/go-go-golems/chorus/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewTailEventsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-events",
		Short: "Print room events mirrored to Redis Streams by `chat --redis-enabled`",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return errors.Wrap(err, "could not bind flags")
			}
			rs := redisstream.SettingsFromViper(v)
			sub, err := redisstream.BuildGroupSubscriber(cmd.Context(), rs)
			if err != nil {
				return err
			}
			defer func() {
				_ = sub.Close()
			}()

			w := cmd.OutOrStdout()
			tailer := eventtap.NewTailer(sub, rs.Stream, func(ev eventtap.Event, cur eventtap.Cursor) {
				switch ev.Type {
				case eventtap.EventError:
					fmt.Fprintf(w, "[%d] ERROR: %s\n", cur.Seq, ev.Text)
				default:
					suffix := ""
					if ev.Aborted {
						suffix = " (interrupted)"
					}
					fmt.Fprintf(w, "[%d] %s(@%s): %s%s\n", cur.Seq, ev.FromUsername, ev.FromUserID, ev.Text, suffix)
				}
			})
			err = tailer.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	redisstream.AddFlags(cmd)
	return cmd
}
