package cmds

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewCreateProfileCommand(v *viper.Viper) *cobra.Command {
	var template bool
	cmd := &cobra.Command{
		Use:   "create-profile <id>",
		Short: "Create a new agent profile",
		Long: "Create a new agent profile. On a terminal an interactive form is shown, " +
			"otherwise (or with --template) a template is stored to be edited by hand.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := profiles.ValidateID(id); err != nil {
				return err
			}

			p := profiles.NewTemplate(id)
			if !template && isatty.IsTerminal(os.Stdin.Fd()) {
				if err := runProfileForm(p); err != nil {
					return err
				}
			}

			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			created, err := store.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			if !created {
				return errors.Wrapf(profiles.ErrProfileExists, "%s", id)
			}
			log.Info().Str("id", id).Str("store", v.GetString("profile-store")).Msg("created profile")
			fmt.Fprintf(cmd.OutOrStdout(), "Created profile %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&template, "template", false, "Store a template without asking")
	return cmd
}

func runProfileForm(p *profiles.Profile) error {
	examples := ""
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("Display name in the chat").
				Value(&p.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Background").
				Description("Who is this persona?").
				Value(&p.Background),
			huh.NewText().
				Title("Conversation examples").
				Description("Sample messages in the persona's voice, one per line").
				Value(&examples),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("LLM provider").
				Description("openai, or a provider configured under providers in the llm config").
				Value(&p.LLMProvider),
			huh.NewInput().
				Title("LLM model").
				Description("Leave empty to use the model from the llm config").
				Value(&p.LLMModel),
		),
	)
	if err := form.Run(); err != nil {
		return errors.Wrap(err, "profile form")
	}
	for _, line := range strings.Split(examples, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			p.ConversationExamples = append(p.ConversationExamples, line)
		}
	}
	return nil
}

type ShowProfileCommand struct {
	*cmds.CommandDescription
	v *viper.Viper
}

type ShowProfileSettings struct {
	ID string `glazed:"id"`
}

var _ cmds.GlazeCommand = &ShowProfileCommand{}

func NewShowProfileCommand(v *viper.Viper) (*ShowProfileCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"show-profile",
		cmds.WithShort("Show a stored profile"),
		cmds.WithLong("Show a stored profile. Use --output yaml to get the file format back."),
		cmds.WithArguments(
			fields.New(
				"id",
				fields.TypeString,
				fields.WithHelp("Profile id"),
				fields.WithRequired(true),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &ShowProfileCommand{CommandDescription: desc, v: v}, nil
}

func (c *ShowProfileCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	s := &ShowProfileSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openStore(c.v)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return showProfileRow(ctx, store, s.ID, gp)
}

// rowSink is the part of a glaze processor the row builders need.
type rowSink interface {
	AddRow(ctx context.Context, row types.Row) error
}

func showProfileRow(ctx context.Context, store profiles.Store, id string, gp rowSink) error {
	p, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return errors.Errorf("profile %q not found", id)
	}
	return gp.AddRow(ctx, profileRow(p))
}

func profileRow(p *profiles.Profile) types.Row {
	return types.NewRow(
		types.MRP("id", p.ID),
		types.MRP("name", p.Name),
		types.MRP("background", p.Background),
		types.MRP("conversation_examples", p.ConversationExamples),
		types.MRP("llm_provider", p.LLMProvider),
		types.MRP("llm_model", p.LLMModel),
	)
}

type ListProfilesCommand struct {
	*cmds.CommandDescription
	v *viper.Viper
}

type ListProfilesSettings struct {
	Concise bool `glazed:"concise"`
}

var _ cmds.GlazeCommand = &ListProfilesCommand{}

func NewListProfilesCommand(v *viper.Viper) (*ListProfilesCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"list-profiles",
		cmds.WithShort("List stored profiles"),
		cmds.WithLong("List stored profiles with their display name and llm routing hints."),
		cmds.WithFlags(
			fields.New(
				"concise",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Only emit profile ids"),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &ListProfilesCommand{CommandDescription: desc, v: v}, nil
}

func (c *ListProfilesCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	s := &ListProfilesSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openStore(c.v)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return listProfileRows(ctx, store, s.Concise, gp)
}

func listProfileRows(ctx context.Context, store profiles.Store, concise bool, gp rowSink) error {
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if concise {
			if err := gp.AddRow(ctx, types.NewRow(types.MRP("id", id))); err != nil {
				return err
			}
			continue
		}
		p, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			// removed since List
			continue
		}
		row := types.NewRow(
			types.MRP("id", p.ID),
			types.MRP("name", p.Name),
			types.MRP("llm_provider", p.LLMProvider),
			types.MRP("llm_model", p.LLMModel),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
