/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskerAppliesRulesInOrder(t *testing.T) {
	xToY := MaskingRuleConfig{Masks: []MaskConfig{{`X`, `Y`}}}
	yToX := MaskingRuleConfig{Masks: []MaskConfig{{`Y`, `X`}}}

	tests := []struct {
		name  string
		rules []MaskingRuleConfig
		in    string
		want  string
	}{
		{"single rule", []MaskingRuleConfig{xToY}, "XYX", "YYY"},
		{"second rule sees the first one's output", []MaskingRuleConfig{xToY, yToX}, "XYX", "XXX"},
		{"reversed order reverses the outcome", []MaskingRuleConfig{yToX, xToY}, "XYX", "YYY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewMasker(tt.rules).Mask(tt.in))
		})
	}
}

func TestDefaultMasks(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			name: "client_secret urlencoded in request body",
			in:   "POST /auth/token HTTP/1.1\r\nHost: files.example.org\r\nUser-Agent: basekit-test\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\nclient_secret=s3cr3t-value&grant_type=client_credentials&scope=files.read",
			want: "POST /auth/token HTTP/1.1\r\nHost: files.example.org\r\nUser-Agent: basekit-test\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\nclient_secret=***&grant_type=client_credentials&scope=files.read",
		},
		{
			name: "client_secret at the end of the body",
			in:   "POST /auth/token HTTP/1.1\r\n\r\ngrant_type=client_credentials&client_secret=s3cr3t-value",
			want: "POST /auth/token HTTP/1.1\r\n\r\ngrant_type=client_credentials&client_secret=***",
		},
		{
			name: "client_secret followed by a newline",
			in:   "POST /auth/token HTTP/1.1\r\n\r\ngrant_type=client_credentials&client_secret=s3cr3t-value\n&scope=files.read",
			want: "POST /auth/token HTTP/1.1\r\n\r\ngrant_type=client_credentials&client_secret=***\n&scope=files.read",
		},
		{
			name: "Authorization header",
			in:   "GET /files HTTP/1.1\r\nHost: files.example.org\r\nAuthorization: Bearer opaque-token\r\nAccept: */*\r\n\r\n",
			want: "GET /files HTTP/1.1\r\nHost: files.example.org\r\nAuthorization: ***\r\nAccept: */*\r\n\r\n",
		},
		{
			name: "authorization header lowercase",
			in:   "GET /files HTTP/1.1\r\nHost: files.example.org\r\nauthorization: Bearer opaque-token\r\n\r\n",
			want: "GET /files HTTP/1.1\r\nHost: files.example.org\r\nAuthorization: ***\r\n\r\n",
		},
		{
			name: "password in JSON",
			in:   `{"login": "alex", "password": "hunter2"}`,
			want: `{"login": "alex", "password": "***"}`,
		},
		{
			name: "password urlencoded with special characters",
			in:   `login=alex&password=p@$$w0rd!&remember=1`,
			want: `login=alex&password=***&remember=1`,
		},
		{
			name: "access_token in JSON",
			in:   `{"access_token": "opaque-token", "expires_in": 3600}`,
			want: `{"access_token": "***", "expires_in": 3600}`,
		},
		{
			name: "id_token in JSON with an escaped quote",
			in:   `{"id_token": "op\"aque"}`,
			want: `{"id_token": "***"}`,
		},
		{
			name: "assertion urlencoded",
			in:   `grant_type=jwt-bearer&assertion=eyJhbGciOiJSUzI1NiJ9&scope=files.read`,
			want: `grant_type=jwt-bearer&assertion=***&scope=files.read`,
		},
		{
			name: "several secrets in one string",
			in:   `client_id=svc-backup&client_secret=s3cr3t-value&refresh_token=rt-123&id_token=idt-456`,
			want: `client_id=svc-backup&client_secret=***&refresh_token=***&id_token=***`,
		},
		{
			name: "nothing to mask",
			in:   `client_id=svc-backup&grant_type=client_credentials`,
			want: `client_id=svc-backup&grant_type=client_credentials`,
		},
	}

	masker := NewMasker(DefaultMasks)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

// testMaskingRules returns a fresh rule list on every call, so tests can
// append to and reorder it without affecting each other.
func testMaskingRules() []MaskingRuleConfig {
	rules := make([]MaskingRuleConfig, 0, len(DefaultMasks)+2)
	rules = append(rules, DefaultMasks...)
	return append(rules,
		MaskingRuleConfig{
			Field:   "api_key",
			Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
		},
		MaskingRuleConfig{
			Field:   "RecoveryCode",
			Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
		},
	)
}

func TestMaskerIsSafeForConcurrentUse(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			name: "api_key",
			in:   "GET /files?api_key=k-123&page=2 HTTP/1.1",
			want: "GET /files?api_key=***&page=2 HTTP/1.1",
		},
		{
			name: "RecoveryCode",
			in:   "POST /auth/recover HTTP/1.1\r\n\r\nlogin=alex&RecoveryCode=XKCD&next=1",
			want: "POST /auth/recover HTTP/1.1\r\n\r\nlogin=alex&RecoveryCode=***&next=1",
		},
	}

	masker := NewMasker(testMaskingRules())
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

// Rules without a field name are pure regexp replacements; they must combine
// with the field-keyed rules regardless of where they sit in the rule list.
func TestMaskerMixedKeyedAndUnkeyedRules(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			name: "unkeyed match after keyed match",
			in:   "POST /auth/token HTTP/1.1\r\n\r\nclient_secret=s3cr3t-value&scope=files.read&ZZZZZ",
			want: "POST /auth/token HTTP/1.1\r\n\r\nclient_secret=***&scope=files.read&#####",
		},
		{
			name: "unkeyed match inside the headers",
			in:   "POST /auth/token HTTP/1.1\r\nUser-Agent: basekit-test\r\nZZZZZ\r\n\r\nclient_secret=s3cr3t-value",
			want: "POST /auth/token HTTP/1.1\r\nUser-Agent: basekit-test\r\n#####\r\n\r\nclient_secret=***",
		},
	}

	rules := append(testMaskingRules(), MaskingRuleConfig{Masks: []MaskConfig{{`ZZZZZ`, `#####`}}})
	masker := NewMasker(rules)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.in))
		})
	}
}

func TestMaskerRuleOrderDoesNotMatterForIndependentRules(t *testing.T) {
	const in = "POST /auth/token HTTP/1.1\r\nHost: files.example.org\r\nQQQQQUser-Agent: basekit-test\r\n\r\nclient_secret=s3cr3t-value&scope=files.read&ZZZZZ"
	const want = "POST /auth/token HTTP/1.1\r\nHost: files.example.org\r\n#####User-Agent: basekit-test\r\n\r\nclient_secret=***&scope=files.read&#####"

	rules := append(testMaskingRules(),
		MaskingRuleConfig{Masks: []MaskConfig{{`ZZZZZ`, `#####`}}},
		MaskingRuleConfig{Masks: []MaskConfig{{`QQQQQ`, `#####`}}},
	)

	for i := 0; i < 10; i++ {
		rand.Shuffle(len(rules), func(a, b int) {
			rules[a], rules[b] = rules[b], rules[a]
		})
		require.Equal(t, want, NewMasker(rules).Mask(in), "shuffle %d", i)
	}
}

func BenchmarkMasker(b *testing.B) {
	masker := NewMasker(testMaskingRules())
	b.ResetTimer()
	for _, tt := range []struct{ name, text string }{
		{
			name: "no field names present",
			text: `{"passwXXord": "abc", "clientXX_secret": "ck-123", "accessXX_token": "at-456"}, assertXXion=abcdef&api_kXXey=k-789& AuthorXXization: Bearer ABC`,
		},
		{
			name: "one field name present",
			text: `{"passwXXord": "abc", "clientXX_secret": "ck-123", "accessXX_token": "at-456"}, assertXXion=abcdef&api_key=k-789& AuthorXXization: Bearer ABC`,
		},
		{
			name: "three field names present",
			text: `{"password": "abc", "clientXX_secret": "ck-123", "access_token": "at-456"}, assertXXion=abcdef&api_key=k-789& AuthorXXization: Bearer ABC`,
		},
	} {
		b.Run(tt.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				masker.Mask(tt.text)
			}
		})
	}
}
