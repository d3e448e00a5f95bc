package device

import "testing"

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{"auto", false},
		{"CPU", false},
		{"cuda", false},
		{"tpu", true},
	}
	for _, tt := range tests {
		d, err := Select(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Select(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Select(%q): %v", tt.name, err)
		}
		if d.Name != CPU || d.Accelerator || d.Threads < 1 || d.CPU == "" {
			t.Errorf("Select(%q) = %+v", tt.name, d)
		}
		if d.String() != "cpu ("+d.CPU+")" {
			t.Errorf("String() = %q", d.String())
		}
	}
}
