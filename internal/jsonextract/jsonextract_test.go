package jsonextract

import "testing"

func TestStripFence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", "\n{\"a\":1}\n"},
		{"bare fence", "```\n[1,2]\n```", "\n[1,2]\n"},
		{"no fence", "plain {\"a\":1} text", "plain {\"a\":1} text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindObject(t *testing.T) {
	content := `Here's my answer: {"success": true, "nested": {"a": 1}} -- done`
	want := `{"success": true, "nested": {"a": 1}}`
	if got := Find(content); got != want {
		t.Errorf("Find() = %q, want %q", got, want)
	}
}

func TestFindArrayOfObjects(t *testing.T) {
	content := `Tasks:\n[{"id": "t1", "deps": []}, {"id": "t2", "deps": ["t1"]}]\nEnd.`
	want := `[{"id": "t1", "deps": []}, {"id": "t2", "deps": ["t1"]}]`
	if got := Find(content); got != want {
		t.Errorf("Find() = %q, want %q", got, want)
	}
}

func TestFindNoJSON(t *testing.T) {
	if got := Find("just some prose, no structure here"); got != "" {
		t.Errorf("Find() = %q, want empty", got)
	}
}

func TestFindObjectPrefersObjectOverArray(t *testing.T) {
	content := `prefix [1,2] then {"a": [1,2,3]} suffix`
	want := `{"a": [1,2,3]}`
	if got := FindObject(content); got != want {
		t.Errorf("FindObject() = %q, want %q", got, want)
	}
}

func TestFindObjectUnterminated(t *testing.T) {
	if got := FindObject(`{"a": 1`); got != "" {
		t.Errorf("FindObject() = %q, want empty for unterminated input", got)
	}
}
