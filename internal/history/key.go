package history

import (
	"strconv"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

const keySuffixLen = 9

// NewKey returns a fresh session key: unix milliseconds followed by a
// random suffix.
func NewKey() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + shortuuid.New()[:keySuffixLen]
}
