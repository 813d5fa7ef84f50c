package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSharedPost(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		wantPost  *SharedPost
		wantOK    bool
		wantErr   bool
	}{
		{
			name:      "plain text",
			plaintext: "just a normal message",
			wantOK:    false,
		},
		{
			name:      "valid shared post",
			plaintext: `{"kind":"shared_post","postId":"p-42","comment":"look at this"}`,
			wantPost:  &SharedPost{Kind: "shared_post", PostID: "p-42", Comment: "look at this"},
			wantOK:    true,
		},
		{
			name:      "json without the discriminator",
			plaintext: `{"kind":"something_else","postId":"p-42"}`,
			wantOK:    false,
		},
		{
			name:      "envelope-looking but broken json",
			plaintext: `{"kind":"shared_post","postId":`,
			wantErr:   true,
		},
		{
			name:      "envelope missing postId",
			plaintext: `{"kind":"shared_post","comment":"no ref"}`,
			wantErr:   true,
		},
		{
			name:      "braces in ordinary text",
			plaintext: "math homework: {1,2,3}",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, ok, err := ParseSharedPost([]byte(tt.plaintext))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, post)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPost, post)
		})
	}
}
