package dispatch

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"bare object", `{"a": 1}`, `{"a":1}`, true},
		{"bare array", `[1, 2, 3]`, `[1,2,3]`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a":1}`, true},
		{"fenced without language", "```\n{\"a\": 1}\n```", `{"a":1}`, true},
		{"prose around object", `Sure, here it is: {"a": 1}. Anything else?`, `{"a":1}`, true},
		{"braces inside strings", `{"text": "use {curly} braces"}`, `{"text":"use {curly} braces"}`, true},
		{"escaped quotes", `{"q": "he said \"hi\""}`, `{"q":"he said \"hi\""}`, true},
		{"first balanced region wins", `{"a": 1} and later {"b": 2}`, `{"a":1}`, true},
		{"skips invalid reaches valid", `{broken then {"a": 1}`, `{"a":1}`, true},
		{"no json", "I could not produce that.", "", false},
		{"empty", "   ", "", false},
		{"unbalanced only", `{"a": `, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			if ok != tt.ok {
				t.Fatalf("ExtractJSON(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseChatPayload(t *testing.T) {
	content, usage, ok := parseChatPayload([]byte(`{
		"choices": [{"message": {"content": "hi"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`))
	if !ok || content != "hi" {
		t.Fatalf("parseChatPayload() = %q, %v", content, ok)
	}
	if usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", usage.TotalTokens)
	}

	_, usage, ok = parseChatPayload([]byte(`{
		"choices": [{"message": {"content": "hi"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`))
	if !ok || usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want prompt+completion when total absent", usage.TotalTokens)
	}

	if _, _, ok := parseChatPayload([]byte(`{"choices": []}`)); ok {
		t.Error("parseChatPayload(no choices) ok = true")
	}
	if _, _, ok := parseChatPayload([]byte(`{"choices": [{"message": {"content": ""}}]}`)); ok {
		t.Error("parseChatPayload(empty content) ok = true")
	}
	if _, _, ok := parseChatPayload([]byte(`not json`)); ok {
		t.Error("parseChatPayload(garbage) ok = true")
	}
}

func TestParseImagePayload(t *testing.T) {
	img, ok := parseImagePayload([]byte(`{"data":[{"b64_json":"aGk=","revised_prompt":"a cat"}]}`))
	if !ok || img.B64JSON != "aGk=" || img.RevisedPrompt != "a cat" {
		t.Errorf("parseImagePayload() = %+v, %v", img, ok)
	}

	if _, ok := parseImagePayload([]byte(`{"data":[]}`)); ok {
		t.Error("parseImagePayload(empty data) ok = true")
	}
	if _, ok := parseImagePayload([]byte(`{"data":[{"revised_prompt":"no image"}]}`)); ok {
		t.Error("parseImagePayload(no url or b64) ok = true")
	}
}

func TestParseVideoPayload(t *testing.T) {
	job, cost, ok := parseVideoPayload([]byte(`{"data":[{"id":"vid_1","status":"processing","url":"https://v/1.mp4","estimated_cost":1.2}]}`))
	if !ok {
		t.Fatal("parseVideoPayload() ok = false")
	}
	if job.VideoID != "vid_1" || job.Status != "processing" {
		t.Errorf("job = %+v", job)
	}
	if job.URL == nil || *job.URL != "https://v/1.mp4" {
		t.Errorf("url = %v", job.URL)
	}
	if cost != 1.2 {
		t.Errorf("cost = %v", cost)
	}

	job, _, ok = parseVideoPayload([]byte(`{"data":[{"id":"vid_2"}]}`))
	if !ok || job.Status != "queued" {
		t.Errorf("job = %+v, want queued default", job)
	}
	if job.URL != nil {
		t.Errorf("url = %v, want nil until rendered", job.URL)
	}

	if _, _, ok := parseVideoPayload([]byte(`{"data":[{"status":"queued"}]}`)); ok {
		t.Error("parseVideoPayload(missing id) ok = true")
	}
	if _, _, ok := parseVideoPayload([]byte(`{"data":[]}`)); ok {
		t.Error("parseVideoPayload(empty data) ok = true")
	}
}

func TestParseTranscriptPayload(t *testing.T) {
	text, ok := parseTranscriptPayload([]byte(`{"text":"hello world"}`))
	if !ok || text != "hello world" {
		t.Errorf("parseTranscriptPayload() = %q, %v", text, ok)
	}
	if _, ok := parseTranscriptPayload([]byte(`{"text":""}`)); ok {
		t.Error("parseTranscriptPayload(empty text) ok = true")
	}
}
