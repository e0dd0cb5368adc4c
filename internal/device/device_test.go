package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotFingerprintEquality(t *testing.T) {
	now := time.Now()
	a := NewSnapshot([]byte("screen-a"), now)
	b := NewSnapshot([]byte("screen-a"), now.Add(time.Second))
	c := NewSnapshot([]byte("screen-b"), now)

	// Same content hashes equal regardless of capture time.
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, "hello%sworld", escapeText("hello world"))
	assert.Equal(t, `a\&b`, escapeText("a&b"))
	assert.Equal(t, "plain", escapeText("plain"))
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "tap", ActionTap.String())
	assert.Equal(t, "swipe", ActionSwipe.String())
	assert.Equal(t, "wait", ActionWait.String())
}
