package pipeline

import (
	"reflect"
	"testing"
)

func drain(tokens []string) []string {
	s := &sentenceSplitter{}
	var got []string
	for _, tok := range tokens {
		got = append(got, s.feed(tok)...)
	}
	if rest, ok := s.flush(); ok {
		got = append(got, rest)
	}
	return got
}

func TestSentenceSplitterSingleToken(t *testing.T) {
	got := drain([]string{"Hi there. How are you?"})
	want := []string{"Hi there.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSentenceSplitterWordByWordTokenization(t *testing.T) {
	got := drain([]string{"Hi ", "there", ". ", "How ", "are ", "you", "?"})
	want := []string{"Hi there.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSentenceSplitterCharByCharTokenization(t *testing.T) {
	src := "Hi there. How are you?"
	tokens := make([]string, len(src))
	for i, c := range src {
		tokens[i] = string(c)
	}
	got := drain(tokens)
	want := []string{"Hi there.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSentenceSplitterFlushOnlyWhenNonEmpty(t *testing.T) {
	s := &sentenceSplitter{}
	s.feed("Complete sentence. ")
	if _, ok := s.flush(); ok {
		t.Fatal("flush after fully-consumed buffer must report nothing")
	}
}
