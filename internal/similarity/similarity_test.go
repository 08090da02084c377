package similarity

import "testing"

func TestLevenshteinIdentical(t *testing.T) {
	if d := Levenshtein("hello", "hello"); d != 0 {
		t.Errorf("Levenshtein(identical) = %d, want 0", d)
	}
}

func TestLevenshteinEmptyStrings(t *testing.T) {
	if d := Levenshtein("", "abc"); d != 3 {
		t.Errorf("Levenshtein(\"\", abc) = %d, want 3", d)
	}
	if d := Levenshtein("abc", ""); d != 3 {
		t.Errorf("Levenshtein(abc, \"\") = %d, want 3", d)
	}
}

func TestLevenshteinKnownDistance(t *testing.T) {
	// kitten -> sitting is distance 3 (classic example)
	if d := Levenshtein("kitten", "sitting"); d != 3 {
		t.Errorf("Levenshtein(kitten, sitting) = %d, want 3", d)
	}
}

func TestSimilarityIdentical(t *testing.T) {
	if s := Similarity("add user auth", "add user auth"); s != 1 {
		t.Errorf("Similarity(identical) = %v, want 1", s)
	}
}

func TestSimilarityBothEmpty(t *testing.T) {
	if s := Similarity("", ""); s != 1 {
		t.Errorf("Similarity(\"\", \"\") = %v, want 1", s)
	}
}

func TestIsDuplicateCloseStrings(t *testing.T) {
	a := "Implement user authentication with JWT tokens"
	b := "Implement user authentication with JWT token"
	if !IsDuplicate(a, b) {
		t.Errorf("expected %q and %q to be flagged as duplicates", a, b)
	}
}

func TestIsDuplicateDistinctStrings(t *testing.T) {
	a := "Implement user authentication"
	b := "Add payment processing integration"
	if IsDuplicate(a, b) {
		t.Errorf("expected %q and %q not to be flagged as duplicates", a, b)
	}
}

func TestFindDuplicates(t *testing.T) {
	existing := []string{"Implement login page", "Set up CI pipeline"}
	candidates := []string{"Implement login pages", "Write release notes"}

	result := FindDuplicates(existing, candidates)
	if result[0] != 0 {
		t.Errorf("expected candidate 0 to duplicate existing[0], got index %d", result[0])
	}
	if result[1] != -1 {
		t.Errorf("expected candidate 1 to be distinct, got index %d", result[1])
	}
}
