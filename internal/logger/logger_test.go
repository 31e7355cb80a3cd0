package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		wantLevel     zapcore.Level
	}{
		{"", "", false, zapcore.InfoLevel},
		{"debug", "json", false, zapcore.DebugLevel},
		{"WARN", "console", false, zapcore.WarnLevel},
		{"verbose", "json", true, 0},
		{"info", "xml", true, 0},
	}
	for _, tt := range tests {
		l, err := New(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) err = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if !l.Core().Enabled(tt.wantLevel) {
			t.Errorf("New(%q, %q) should enable %v", tt.level, tt.format, tt.wantLevel)
		}
		if tt.wantLevel > zapcore.DebugLevel && l.Core().Enabled(tt.wantLevel-1) {
			t.Errorf("New(%q, %q) should not enable %v", tt.level, tt.format, tt.wantLevel-1)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) should return a logger")
	}
	l, _ := New("info", "json")
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
