package logging

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "firebird bare dsn",
			input:    "SYSDBA:masterkey@localhost:3050/C:/Mistral/DATA.FDB?charset=WIN1251",
			expected: "SYSDBA:[REDACTED]@localhost:3050/C:/Mistral/DATA.FDB?charset=WIN1251",
		},
		{
			name:     "url with scheme",
			input:    "postgres://intake:s3cret@db:5432/ledger",
			expected: "postgres://intake:[REDACTED]@db:5432/ledger",
		},
		{
			name:     "key value password",
			input:    "server=db;user id=sa;password=Secret1;database=ledger",
			expected: "server=db;user id=sa;password=[REDACTED];database=ledger",
		},
		{
			name:     "parola parameter",
			input:    "host=db parola=tajna",
			expected: "host=db parola=[REDACTED]",
		},
		{
			name:     "no credentials",
			input:    "host=localhost port=3050",
			expected: "host=localhost port=3050",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.input); got != tt.expected {
				t.Errorf("SanitizeDSN() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}

	err := errors.New("open SYSDBA:masterkey@10.0.0.5:3050/db.fdb: connection refused")
	got := SanitizeError(err)
	if strings.Contains(got, "masterkey") {
		t.Errorf("password leaked: %q", got)
	}
	if !strings.Contains(got, "connection refused") {
		t.Errorf("message lost: %q", got)
	}
}

func TestMaskDetail(t *testing.T) {
	detail := map[string]any{
		"login":        "ivan",
		"password":     "secret",
		"Pwd":          "secret",
		"parola":       "tajna",
		"rows":         2,
		"params":       map[string]any{"PASS": "x", "LOGIN": "ivan"},
		"client_error": errors.New("dial SYSDBA:masterkey@db: refused"),
	}

	masked := MaskDetail(detail)

	for _, key := range []string{"password", "Pwd", "parola"} {
		if masked[key] != MaskedValue {
			t.Errorf("%s = %v, want %q", key, masked[key], MaskedValue)
		}
	}
	if masked["login"] != "ivan" || masked["rows"] != 2 {
		t.Errorf("non-sensitive values changed: %v", masked)
	}
	nested := masked["params"].(map[string]any)
	if nested["PASS"] != MaskedValue || nested["LOGIN"] != "ivan" {
		t.Errorf("nested = %v", nested)
	}
	if s, _ := masked["client_error"].(string); strings.Contains(s, "masterkey") {
		t.Errorf("error leaked password: %q", s)
	}
	if detail["password"] != "secret" {
		t.Error("input map was modified")
	}
	if MaskDetail(nil) != nil {
		t.Error("MaskDetail(nil) should be nil")
	}
}

func TestSanitizeQuery(t *testing.T) {
	q := "SELECT *\n  FROM   USERS\n WHERE NAME = ?"
	if got := SanitizeQuery(q); got != "SELECT * FROM USERS WHERE NAME = ?" {
		t.Errorf("SanitizeQuery() = %q", got)
	}

	long := "SELECT " + strings.Repeat("A, ", 100) + "B FROM T"
	got := SanitizeQuery(long)
	if len(got) != MaxQueryLogLength+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("long query not truncated: len=%d", len(got))
	}
}

func TestFormatArgs(t *testing.T) {
	got := FormatArgs([]any{nil, 12, "abc", strings.Repeat("x", 100)})
	if got[0] != "NULL" || got[1] != "12" || got[2] != "abc" {
		t.Errorf("FormatArgs() = %v", got)
	}
	if len(got[3]) != 67 {
		t.Errorf("long arg not truncated: len=%d", len(got[3]))
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString() = %q", got)
	}
	if got := TruncateString("0123456789", 4); got != "0123..." {
		t.Errorf("TruncateString() = %q", got)
	}
}
