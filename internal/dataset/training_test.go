package dataset

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func records(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"q":    string(rune('a' + i)),
			"a":    string(rune('A' + i)),
			"hint": "h",
		}
	}
	return out
}

func TestEncodeJSONLines(t *testing.T) {
	t.Parallel()

	got, err := EncodeJSONLines([]any{
		map[string]any{"a": 1},
		map[string]any{"b": "<tag> & more"},
	})
	if err != nil {
		t.Fatalf("EncodeJSONLines: %v", err)
	}
	want := `{"a":1}` + "\n" + `{"b":"<tag> & more"}`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	empty, err := EncodeJSONLines([]any{})
	if err != nil || empty != "" {
		t.Fatalf("expected empty output, got %q, %v", empty, err)
	}
}

func TestEncodeJSONLinesError(t *testing.T) {
	t.Parallel()

	if _, err := EncodeJSONLines([]any{make(chan int)}); err == nil {
		t.Fatalf("expected error for unencodable item")
	}
}

func TestCreateTrainingDataOverlapping(t *testing.T) {
	t.Parallel()

	split, err := CreateTrainingData(records(5), Options{
		EvalPercent:   50,
		PromptKey:     "q",
		GenerationKey: "a",
	})
	if err != nil {
		t.Fatalf("CreateTrainingData: %v", err)
	}
	if len(split.Training) != 5 || len(split.Eval) != 2 {
		t.Fatalf("expected 5/2 examples, got %d/%d", len(split.Training), len(split.Eval))
	}
	want := []Example{
		{Prompt: "a", Generation: "A", Instruction: ""},
		{Prompt: "b", Generation: "B", Instruction: ""},
	}
	if diff := cmp.Diff(want, split.Eval); diff != "" {
		t.Fatalf("eval mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTrainingDataDisjointWithInstructions(t *testing.T) {
	t.Parallel()

	split, err := CreateTrainingData(records(4), Options{
		EvalPercent:     25,
		PromptKey:       "q",
		GenerationKey:   "a",
		InstructionKey:  "hint",
		AddInstructions: true,
		Disjoint:        true,
	})
	if err != nil {
		t.Fatalf("CreateTrainingData: %v", err)
	}
	if len(split.Training) != 3 || len(split.Eval) != 1 {
		t.Fatalf("expected 3/1 examples, got %d/%d", len(split.Training), len(split.Eval))
	}
	if split.Eval[0].Prompt != "a" || split.Training[0].Prompt != "b" {
		t.Fatalf("unexpected split: %+v", split)
	}

	training, eval, err := split.JSONLines()
	if err != nil {
		t.Fatalf("JSONLines: %v", err)
	}
	if eval != `{"prompt":"a","generation":"A","instruction":"h"}` {
		t.Fatalf("unexpected eval JSONL: %s", eval)
	}
	if n := len(strings.Split(training, "\n")); n != 3 {
		t.Fatalf("expected 3 training lines, got %d", n)
	}
}

func TestCreateTrainingDataShuffleKeepsInput(t *testing.T) {
	t.Parallel()

	in := records(10)
	split, err := CreateTrainingData(in, Options{
		PromptKey:     "q",
		GenerationKey: "a",
		Shuffle:       true,
		Rand:          rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("CreateTrainingData: %v", err)
	}
	if in[0]["q"] != "a" {
		t.Fatalf("input records must not be reordered")
	}

	seen := map[any]bool{}
	for _, ex := range split.Training {
		seen[ex.Prompt] = true
	}
	if len(seen) != 10 || len(split.Eval) != 0 {
		t.Fatalf("shuffle lost examples: %+v", split)
	}
}

func TestCreateTrainingDataMissingKeyIsOmitted(t *testing.T) {
	t.Parallel()

	split, err := CreateTrainingData([]map[string]any{{"q": "only prompt"}}, Options{
		PromptKey:     "q",
		GenerationKey: "missing",
	})
	if err != nil {
		t.Fatalf("CreateTrainingData: %v", err)
	}
	training, _, err := split.JSONLines()
	if err != nil {
		t.Fatalf("JSONLines: %v", err)
	}
	if training != `{"prompt":"only prompt","instruction":""}` {
		t.Fatalf("unexpected JSONL: %s", training)
	}
}

func TestCreateTrainingDataValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		records []map[string]any
		opts    Options
		want    string
	}{
		{"no records", nil, Options{PromptKey: "q", GenerationKey: "a"}, "training data is required"},
		{"no prompt key", records(1), Options{GenerationKey: "a"}, "prompt key is required"},
		{"no generation key", records(1), Options{PromptKey: "q"}, "generation key is required"},
		{"percent out of range", records(1), Options{PromptKey: "q", GenerationKey: "a", EvalPercent: 101}, "between 0 and 100"},
	}
	for _, tc := range cases {
		_, err := CreateTrainingData(tc.records, tc.opts)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}
}
