// Package reference builds and parses the payment references handed to
// providers. A reference has the shape
//
//	<PREFIX>-<compact checkout id>-<time base36><random>
//
// so a callback echoing it back can be routed to exactly one checkout.
package reference

import (
	"strconv"
	"strings"
	"time"

	"github.com/fatflowers/dropship/pkg/tool"
)

const (
	DefaultPrefix = "DS"
	randomLen     = 4
)

type Codec struct {
	prefix string
	now    func() time.Time
}

func NewCodec(prefix string) *Codec {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" || strings.Contains(prefix, "-") {
		prefix = DefaultPrefix
	}
	return &Codec{prefix: prefix, now: time.Now}
}

// Generate returns a fresh reference for the given checkout id. Two calls
// for the same id never return the same value.
func (c *Codec) Generate(entityID string) (string, error) {
	compact, err := tool.CompactUUID(entityID)
	if err != nil {
		return "", err
	}
	suffix := strings.ToUpper(strconv.FormatInt(c.now().UnixNano(), 36)) + tool.RandomToken(randomLen)
	return c.prefix + "-" + compact + "-" + suffix, nil
}

// Parse recovers the checkout id. ok is false for anything that was not
// produced by Generate with the same prefix; callers then fall back to a
// column lookup.
func (c *Codec) Parse(ref string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(ref), "-")
	if len(parts) != 3 || !strings.EqualFold(parts[0], c.prefix) || parts[2] == "" {
		return "", false
	}
	if len(parts[1]) != 32 {
		return "", false
	}
	id, err := tool.ExpandUUID(strings.ToLower(parts[1]))
	if err != nil {
		return "", false
	}
	return id, true
}
