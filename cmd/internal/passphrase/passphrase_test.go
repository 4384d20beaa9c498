package passphrase

import "testing"

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	src := NewSource("QUEST_KEYSTORE_PASS")
	src.lookup = fakeEnv(map[string]string{"QUEST_KEYSTORE_PASS": "hunter2"})
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("got %q err %v", got, err)
	}
	src.lookup = fakeEnv(nil)
	if again, _ := src.Get(); again != "hunter2" {
		t.Fatalf("expected cached passphrase, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	src := NewSource("QUEST_KEYSTORE_PASS")
	src.lookup = fakeEnv(map[string]string{"QUEST_KEYSTORE_PASS": "   "})
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
