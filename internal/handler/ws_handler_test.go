package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigateAllowed(t *testing.T) {
	cases := []struct {
		name   string
		locked bool
		index  int
		total  int
		want   bool
	}{
		{"first question", false, 0, 3, true},
		{"last question", false, 2, 3, true},
		{"negative index", false, -1, 3, false},
		{"index at paper end", false, 3, 3, false},
		{"index far past paper end", false, 999, 3, false},
		{"locked attempt is frozen", true, 1, 3, false},
		{"locked and out of range", true, 999, 3, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, navigateAllowed(tc.locked, tc.index, tc.total))
		})
	}
}
