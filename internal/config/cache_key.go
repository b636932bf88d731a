package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserActiveTestKey holds the session id of the user's live test.
func (r *CacheKeyStruct) UserActiveTestKey(userID string) string {
	return fmt.Sprintf("user:%s:active_test", userID)
}

var CacheKey = NewCacheKeyStruct()
