package dataset

import (
	"errors"
	"math"
	"math/rand"
)

// Example is one training record in the layout the trainer expects.
// A field whose source key is missing is left out of the JSON.
type Example struct {
	Prompt      any `json:"prompt,omitempty"`
	Generation  any `json:"generation,omitempty"`
	Instruction any `json:"instruction,omitempty"`
}

type Options struct {
	// EvalPercent of the examples (rounded down) become evaluation data.
	EvalPercent float64

	PromptKey       string
	GenerationKey   string
	InstructionKey  string
	AddInstructions bool

	Shuffle bool
	// Disjoint removes the evaluation examples from the training set.
	Disjoint bool

	// Rand drives Shuffle; nil uses the global source.
	Rand *rand.Rand
}

func (o *Options) Validate() error {
	if o.PromptKey == "" {
		return errors.New("prompt key is required")
	}
	if o.GenerationKey == "" {
		return errors.New("generation key is required")
	}
	if math.IsNaN(o.EvalPercent) || o.EvalPercent < 0 || o.EvalPercent > 100 {
		return errors.New("evaluation data percent must be between 0 and 100")
	}
	return nil
}

// Split holds the two halves of a training data set.
type Split struct {
	Training []Example
	Eval     []Example
}

// CreateTrainingData maps records to Examples and splits off the first
// EvalPercent of them as evaluation data. The input slice is not
// modified.
func CreateTrainingData(records []map[string]any, opts Options) (*Split, error) {
	if len(records) == 0 {
		return nil, errors.New("training data is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	examples := make([]Example, len(records))
	for i, rec := range records {
		ex := Example{
			Prompt:     rec[opts.PromptKey],
			Generation: rec[opts.GenerationKey],
		}
		if opts.AddInstructions && opts.InstructionKey != "" {
			ex.Instruction = rec[opts.InstructionKey]
		} else {
			ex.Instruction = ""
		}
		examples[i] = ex
	}

	if opts.Shuffle {
		shuffle := rand.Shuffle
		if opts.Rand != nil {
			shuffle = opts.Rand.Shuffle
		}
		shuffle(len(examples), func(i, j int) {
			examples[i], examples[j] = examples[j], examples[i]
		})
	}

	n := int(math.Floor(float64(len(examples)) * opts.EvalPercent / 100))

	split := &Split{Eval: examples[:n:n]}
	if opts.Disjoint {
		split.Training = examples[n:]
	} else {
		split.Training = examples
	}
	return split, nil
}

// JSONLines encodes both halves of the split.
func (s *Split) JSONLines() (training, eval string, err error) {
	if training, err = EncodeJSONLines(s.Training); err != nil {
		return "", "", err
	}
	if eval, err = EncodeJSONLines(s.Eval); err != nil {
		return "", "", err
	}
	return training, eval, nil
}
