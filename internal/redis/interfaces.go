package redis

import (
	"dispatch/internal/feed"
	"dispatch/internal/service"
)

// Ensure concrete types implement the collaborator interfaces.
var (
	_ feed.Publisher       = (*FeedStore)(nil)
	_ feed.Subscriber      = (*FeedStore)(nil)
	_ service.EligiblePool = (*PoolStore)(nil)
)
