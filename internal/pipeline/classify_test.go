package pipeline

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Class
	}{
		{
			name: "plain prose",
			body: "The weather tomorrow looks mild, around 18°C with light wind.",
			want: ClassConversational,
		},
		{
			name: "empty",
			body: "",
			want: ClassConversational,
		},
		{
			name: "ack",
			body: "On it, give me a moment.",
			want: ClassAck,
		},
		{
			name: "markdown table",
			body: "Here are the results:\n| Name | Score |\n|------|-------|\n| Ada | 10 |\n| Bob | 8 |",
			want: ClassTable,
		},
		{
			name: "tabular json",
			body: `[{"name":"Ada","score":10},{"name":"Bob","score":8}]`,
			want: ClassTable,
		},
		{
			name: "non-tabular json",
			body: `{"nested":{"a":1},"b":[1,2,3]}`,
			want: ClassCode,
		},
		{
			name: "json in fence",
			body: "```json\n[{\"a\":1},{\"a\":2}]\n```",
			want: ClassTable,
		},
		{
			name: "code dominant",
			body: "```go\nfunc main() {\n\tfmt.Println(\"hi\")\n\tos.Exit(0)\n}\n```",
			want: ClassCode,
		},
		{
			name: "search results",
			body: "Found a few good sources:\n- [Go blog](https://go.dev/blog/one) intro\n- [Spec](https://go.dev/ref/spec) reference\n- [Wiki](https://en.wikipedia.org/wiki/Go) background",
			want: ClassSearch,
		},
		{
			name: "news results",
			body: "Today's headlines:\n- [Markets rally](https://news.example.com/a) breaking report\n- [Storm warning](https://weather.example.org/b) published this morning",
			want: ClassNews,
		},
		{
			name: "image results",
			body: "Here you go:\n- https://img.example.com/cat.png\n- https://img.example.org/dog.jpg",
			want: ClassImage,
		},
		{
			name: "local results",
			body: "Nearby options:\n- [Blue Cafe](https://maps.example.com/1) ★ 4.6 rating, 5 mins walk\n- [Corner Deli](https://maps.example.org/2) ★ 4.2 rating, open now",
			want: ClassLocal,
		},
		{
			name: "two urls in prose is not search",
			body: "Compare https://a.example.com with https://b.example.com for details.",
			want: ClassConversational,
		},
		{
			name: "schedule",
			body: "Your meeting with the design team is at 14:30, and the dentist appointment at 9:00 AM.",
			want: ClassSchedule,
		},
		{
			name: "error output",
			body: "Error: failed to reach the calendar service\nconnection refused after 3 attempts",
			want: ClassError,
		},
		{
			name: "error mention deep in answer is conversational",
			body: "The deploy went fine overall. " + longProse(450) + " One minor error was logged but auto-recovered.",
			want: ClassConversational,
		},
		{
			name: "list",
			body: "Shopping list:\n- eggs\n- milk\n- bread\n- coffee",
			want: ClassList,
		},
		{
			name: "mixed table and code",
			body: "| a | b |\n|---|---|\n| 1 | 2 |\n\n```py\nprint(1)\nprint(2)\nprint(3)\nprint(4)\nprint(5)\nprint(6)\n```",
			want: ClassMixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.body); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func longProse(n int) string {
	const s = "All services responded within budget and the rollout completed. "
	out := ""
	for len(out) < n {
		out += s
	}
	return out
}

func TestPureJSONBlock(t *testing.T) {
	if _, ok := pureJSONBlock("some text {\"a\":1}"); ok {
		t.Error("prose with trailing JSON should not be a pure block")
	}
	payload, ok := pureJSONBlock("```json\n{\"a\": 1}\n```")
	if !ok || payload != `{"a": 1}` {
		t.Errorf("fenced json: got %q ok=%v", payload, ok)
	}
	if _, ok := pureJSONBlock("```go\n{\"a\":1}\n```"); ok {
		t.Error("non-json fence language should not qualify")
	}
}
