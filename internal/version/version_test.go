package version

import "testing"

func TestNewer(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"v1.2.3", "1.2.2", true},
		{"v1.2.3", "v1.2.3", false},
		{"1.2.3", "1.2.4", false},
		{"2.0.0", "1.9.9", true},
		{"v1.10.0", "v1.9.0", true},
		{"v1.2.3-beta", "1.2.2", true},
		{"garbage", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := newer(tt.latest, tt.current); got != tt.want {
			t.Errorf("newer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if p := parse("v2.14.7"); p != [3]int{2, 14, 7} {
		t.Errorf("parse = %v", p)
	}
	if p := parse("1.2"); p != [3]int{1, 2, 0} {
		t.Errorf("parse = %v", p)
	}
}

func TestCheckForUpdateSkipsDev(t *testing.T) {
	if info := CheckForUpdate("dev"); info != nil {
		t.Error("dev builds must not check for updates")
	}
	if info := CheckForUpdate(""); info != nil {
		t.Error("empty version must not check for updates")
	}
}
