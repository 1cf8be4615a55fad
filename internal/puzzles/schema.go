package puzzles

import (
	"fmt"
	"strings"
)

const (
	CatalogKind            = "catalog"
	SupportedSchemaVersion = 1

	// FirstStage and LastStage bound the puzzle stages. Stage 0 is the
	// confirmation prompt, 11 the troll sequence and 12 the reveal.
	FirstStage = 1
	LastStage  = 10
)

type Kind string

const (
	KindPhoto          Kind = "photo"
	KindText           Kind = "text"
	KindAudio          Kind = "audio"
	KindCaptcha        Kind = "captcha"
	KindComplexCaptcha Kind = "complex_captcha"
	KindColorTrick     Kind = "color_trick"
	KindChoosePerson   Kind = "choose_person"
)

// Narrative reports whether the kind is accepted unconditionally.
func (k Kind) Narrative() bool {
	return k == KindColorTrick || k == KindChoosePerson
}

func (k Kind) textual() bool {
	return k == KindPhoto || k == KindText || k == KindAudio
}

type Catalog struct {
	Kind          string   `yaml:"kind"`
	SchemaVersion int      `yaml:"schema_version"`
	Name          string   `yaml:"name"`
	Puzzles       []Puzzle `yaml:"puzzles"`

	Path    string         `yaml:"-"`
	byStage map[int]Puzzle `yaml:"-"`
}

type Puzzle struct {
	Stage          int      `yaml:"stage"`
	Type           Kind     `yaml:"type"`
	Title          string   `yaml:"title"`
	Description    string   `yaml:"description"`
	PhotoKeys      []string `yaml:"photo_keys"`
	Answer         string   `yaml:"answer"`
	AnswerAliases  []string `yaml:"answer_aliases"`
	CorrectMessage string   `yaml:"correct_message"`
	WrongMessages  []string `yaml:"wrong_messages"`

	Choices   []string          `yaml:"choices"`
	Questions []CaptchaQuestion `yaml:"questions"`
	PartA     *CompositePartA   `yaml:"part_a"`
	PartB     *CompositePartB   `yaml:"part_b"`
}

type CaptchaQuestion struct {
	Text        string   `yaml:"text"`
	Options     []string `yaml:"options"`
	AnswerIndex int      `yaml:"answer_index"`
}

type CompositePartA struct {
	Questions []SelectQuestion `yaml:"questions"`
}

type SelectQuestion struct {
	Text         string         `yaml:"text"`
	Options      []PhotoOption  `yaml:"options"`
	CorrectIndex int            `yaml:"correct_index"`
	WrongMessage map[int]string `yaml:"wrong_messages"`
}

type PhotoOption struct {
	Label    string `yaml:"label"`
	PhotoKey string `yaml:"photo_key"`
}

type CompositePartB struct {
	Rounds []GridRound `yaml:"rounds"`
}

type GridRound struct {
	Instruction    string   `yaml:"instruction"`
	GridKeys       []string `yaml:"grid_keys"`
	CorrectIndices []int    `yaml:"correct_indices"`
}

func (c Catalog) Validate() error {
	if c.Kind != CatalogKind {
		return fmt.Errorf("invalid kind %q", c.Kind)
	}
	if c.SchemaVersion != SupportedSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d", c.SchemaVersion)
	}
	if len(c.Puzzles) == 0 {
		return fmt.Errorf("catalog has no puzzles")
	}
	seen := map[int]bool{}
	for _, p := range c.Puzzles {
		if p.Stage < FirstStage || p.Stage > LastStage {
			return fmt.Errorf("stage %d out of range %d-%d", p.Stage, FirstStage, LastStage)
		}
		if seen[p.Stage] {
			return fmt.Errorf("duplicate stage %d", p.Stage)
		}
		seen[p.Stage] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("stage %d: %w", p.Stage, err)
		}
	}
	for stage := FirstStage; stage <= LastStage; stage++ {
		if !seen[stage] {
			return fmt.Errorf("stage %d is missing", stage)
		}
	}
	return nil
}

func (p Puzzle) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("title is required")
	}
	switch {
	case p.Type.textual():
		if strings.TrimSpace(p.Answer) == "" {
			return fmt.Errorf("answer is required for %s puzzles", p.Type)
		}
		if p.Type == KindAudio && len(p.PhotoKeys) == 0 {
			return fmt.Errorf("audio puzzles need a media key")
		}
	case p.Type == KindCaptcha:
		if len(p.Questions) == 0 {
			return fmt.Errorf("captcha requires questions")
		}
		for i, q := range p.Questions {
			if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
				return fmt.Errorf("question %d: answer_index %d out of range", i, q.AnswerIndex)
			}
		}
	case p.Type == KindComplexCaptcha:
		if p.PartA == nil || len(p.PartA.Questions) == 0 {
			return fmt.Errorf("complex_captcha requires part_a questions")
		}
		if p.PartB == nil || len(p.PartB.Rounds) == 0 {
			return fmt.Errorf("complex_captcha requires part_b rounds")
		}
		for i, q := range p.PartA.Questions {
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				return fmt.Errorf("part_a question %d: correct_index %d out of range", i, q.CorrectIndex)
			}
		}
		for i, r := range p.PartB.Rounds {
			if len(r.CorrectIndices) == 0 {
				return fmt.Errorf("part_b round %d: correct_indices is required", i)
			}
			for _, idx := range r.CorrectIndices {
				if idx < 0 || idx >= len(r.GridKeys) {
					return fmt.Errorf("part_b round %d: index %d out of range", i, idx)
				}
			}
		}
	case p.Type.Narrative():
		if len(p.Choices) == 0 {
			return fmt.Errorf("%s puzzles need choices", p.Type)
		}
	default:
		return fmt.Errorf("unsupported type %q", p.Type)
	}
	return nil
}

// Get returns the puzzle configured for stage.
func (c *Catalog) Get(stage int) (Puzzle, bool) {
	if c.byStage != nil {
		p, ok := c.byStage[stage]
		return p, ok
	}
	for _, p := range c.Puzzles {
		if p.Stage == stage {
			return p, true
		}
	}
	return Puzzle{}, false
}

// Len is the number of configured puzzle stages.
func (c *Catalog) Len() int { return len(c.Puzzles) }

func (c *Catalog) index() {
	c.byStage = make(map[int]Puzzle, len(c.Puzzles))
	for _, p := range c.Puzzles {
		c.byStage[p.Stage] = p
	}
}

// WrongMessageFor returns the custom message for a wrong part A choice.
func (q SelectQuestion) WrongMessageFor(choice int) string {
	if q.WrongMessage == nil {
		return ""
	}
	return q.WrongMessage[choice]
}
