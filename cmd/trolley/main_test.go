package main

import (
	"reflect"
	"testing"
)

func TestRewriteDirectListArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"trolley"},
			want: []string{"trolley"},
		},
		{
			name: "direct list id first token",
			in:   []string{"trolley", "lst-abc123"},
			want: []string{"trolley", "items", "--list", "lst-abc123"},
		},
		{
			name: "direct list id after value flag",
			in:   []string{"trolley", "--dir", "./tmp-test-data", "lst-abc123"},
			want: []string{"trolley", "--dir", "./tmp-test-data", "items", "--list", "lst-abc123"},
		},
		{
			name: "direct list id after equals flag",
			in:   []string{"trolley", "--dir=./tmp-test-data", "lst-abc123"},
			want: []string{"trolley", "--dir=./tmp-test-data", "items", "--list", "lst-abc123"},
		},
		{
			name: "direct list id after bool flag",
			in:   []string{"trolley", "--pretty", "lst-abc123"},
			want: []string{"trolley", "--pretty", "items", "--list", "lst-abc123"},
		},
		{
			name: "double dash stops the rewrite",
			in:   []string{"trolley", "--", "lst-abc123"},
			want: []string{"trolley", "--", "lst-abc123"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"trolley", "items", "--list", "lst-abc123"},
			want: []string{"trolley", "items", "--list", "lst-abc123"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"trolley", "wat"},
			want: []string{"trolley", "wat"},
		},
		{
			name: "bare prefix not rewritten",
			in:   []string{"trolley", "lst-"},
			want: []string{"trolley", "lst-"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteDirectListArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewriteDirectListArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
