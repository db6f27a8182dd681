package roomid

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/mahaj/logchat/pkg/model"
)

// ID identifies the server-side broadcast room shared by two participants.
type ID string

func (id ID) String() string { return string(id) }

// Short returns a log-friendly prefix of the id.
func (id ID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// Derive maps an unordered pair of handles to a room id. Both participants
// compute the same value regardless of who opens the conversation.
func Derive(handleA, handleB string) (ID, error) {
	if handleA == "" || handleB == "" {
		return "", fmt.Errorf("derive room id: %w", model.ErrInvalidIdentity)
	}

	// Sort handles to ensure a consistent room id
	pair := []string{handleA, handleB}
	sort.Strings(pair)

	sum := sha512.Sum512([]byte(pair[0] + pair[1]))
	return ID(hex.EncodeToString(sum[:])), nil
}
