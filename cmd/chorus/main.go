package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/chorus/cmd/chorus/cmds"
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chorus",
		Short:         "chorus runs a group chat between you and LLM agent profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// flags are parsed now, so --log-level and co can be honoured
			return cmds.InitLogger(cmd)
		},
	}
	cobra.CheckErr(clay.InitGlazed("chorus", rootCmd))
	cmds.AddPersistentFlags(rootCmd)
	cobra.CheckErr(cmds.InitConfig(v, rootCmd))

	showCmd, err := cmds.NewShowProfileCommand(v)
	cobra.CheckErr(err)
	listCmd, err := cmds.NewListProfilesCommand(v)
	cobra.CheckErr(err)
	for _, c := range []glazedcmds.Command{showCmd, listCmd} {
		command, err := cli.BuildCobraCommand(c)
		cobra.CheckErr(err)
		rootCmd.AddCommand(command)
	}

	rootCmd.AddCommand(
		cmds.NewCreateProfileCommand(v),
		cmds.NewChatCommand(v),
		cmds.NewTailEventsCommand(v),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(viper.New()).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
