package profiles

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const DefaultProvider = "openai"

// Profile is the persona an agent impersonates in a room.
type Profile struct {
	ID string `yaml:"id" json:"id" validate:"required,profileid"`
	// Name is the display name.
	Name string `yaml:"name" json:"name" validate:"required"`
	// Background describes the persona's experience and context.
	Background string `yaml:"background" json:"background"`
	// ConversationExamples are sample lines in the persona's voice.
	ConversationExamples []string `yaml:"conversation_examples" json:"conversation_examples"`

	LLMProvider string `yaml:"llm_provider" json:"llm_provider"`
	LLMModel    string `yaml:"llm_model" json:"llm_model"`
}

// ErrProfileExists is returned when creating a profile whose id is taken.
var ErrProfileExists = errors.New("profile already exists")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// ids end up in file names and in "@id" mentions
		_ = validate.RegisterValidation("profileid", func(fl validator.FieldLevel) bool {
			return idPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateID checks that id can be used as a profile id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Errorf("invalid profile id %q: only letters, digits, '-' and '_' are allowed", id)
	}
	return nil
}

// Validate checks the required fields of a profile.
func Validate(p *Profile) error {
	if p == nil {
		return errors.New("profile is nil")
	}
	if err := getValidator().Struct(p); err != nil {
		return errors.Wrapf(err, "invalid profile %q", p.ID)
	}
	return nil
}

// NewTemplate returns a profile skeleton to be filled in by hand.
func NewTemplate(id string) *Profile {
	return &Profile{
		ID:                   id,
		Name:                 id,
		Background:           "",
		ConversationExamples: []string{},
		LLMProvider:          DefaultProvider,
		LLMModel:             "",
	}
}
