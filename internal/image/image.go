// Package image builds placeholder image URLs for groups and user profiles.
//
// Both URLs point at Lorem Picsum. The "random" query parameter is derived
// from a seed, so the same group or user always gets the same picture and
// the frontend can cache it.
package image

import (
	"fmt"
	"unicode/utf16"
)

const picsumBase = "https://picsum.photos"

// GroupURL returns the 300x200 placeholder for the group with the given id.
func GroupURL(groupID int64) string {
	return fmt.Sprintf("%s/300/200?random=%d", picsumBase, groupID%10000)
}

// ProfileURL returns the 50x50 placeholder for a user, seeded by a string
// such as the user's subject.
//
// SEED HASH:
// The seed is hashed with the classic 31-multiplier string hash over UTF-16
// code units, wrapping at 32 bits. The result matches URLs already stored
// for existing users, so a returning user keeps the same picture.
func ProfileURL(seed string) string {
	h := int64(stringHash(seed))
	if h < 0 {
		h = -h
	}
	return fmt.Sprintf("%s/50/50?random=%d", picsumBase, h%10000)
}

func stringHash(s string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(unit)
	}
	return h
}
