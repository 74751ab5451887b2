package capability

import "testing"

func TestProjections(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		want Projection
	}{
		{"small text", SmallText{Prompt: "hello"}, Projection{PromptLength: 5}},
		{"large text", LargeText{Text: "0123456789"}, Projection{PromptLength: 10}},
		{"small object with schema", SmallObject{Prompt: "x", Schema: "{}"}, Projection{PromptLength: 1, HasSchema: true}},
		{"small object without schema", SmallObject{Prompt: "x"}, Projection{PromptLength: 1, HasSchema: false}},
		{"large object with schema", LargeObject{Text: "abcd", Schema: "{}"}, Projection{PromptLength: 4, HasSchema: true}},
		{"embedding", Embedding{Text: "abc"}, Projection{PromptLength: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.p.Projection()
			if got != tc.want {
				t.Fatalf("Projection() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
