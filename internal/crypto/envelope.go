package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// sharedPostKind tags the structured "shared post" payload a client may place
// inside an encrypted message.
const sharedPostKind = "shared_post"

// SharedPost is a decrypted payload that references a feed post plus an
// optional display comment.
type SharedPost struct {
	Kind    string `json:"kind"`
	PostID  string `json:"postId"`
	Comment string `json:"comment,omitempty"`
}

// ParseSharedPost sniffs a decrypted plaintext for the shared-post envelope.
// Returns (post, true, nil) for a valid envelope and (nil, false, nil) for
// ordinary text. A payload that looks like the envelope but fails to parse
// returns an error; it must never be rendered as raw text.
func ParseSharedPost(plaintext []byte) (*SharedPost, bool, error) {
	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, []byte(sharedPostKind)) {
		return nil, false, nil
	}

	var post SharedPost
	if err := json.Unmarshal(trimmed, &post); err != nil {
		return nil, false, fmt.Errorf("malformed shared post payload: %w", err)
	}
	if post.Kind != sharedPostKind {
		return nil, false, nil
	}
	if post.PostID == "" {
		return nil, false, fmt.Errorf("shared post payload missing postId")
	}
	return &post, true, nil
}
