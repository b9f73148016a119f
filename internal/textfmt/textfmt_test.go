package textfmt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const cyan = "\033[36m"

func TestBytes(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "0 B", Bytes(-5))
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "10 MiB", Bytes(10<<20))
}

func TestAgo(t *testing.T) {
	assert.Equal(t, "recently", Ago(time.Time{}))
	assert.Equal(t, "2 hours ago", Ago(time.Now().Add(-2*time.Hour-time.Minute)))
}

func TestMiddle(t *testing.T) {
	assert.Equal(t, "ab…f", Middle("abcdef", 4))
	assert.Equal(t, "abc", Middle("abc", 4))
	assert.Equal(t, "…", Middle("abc", 1))
	assert.Empty(t, Middle("abc", 0))
}

func TestWidthIgnoresEscapes(t *testing.T) {
	assert.Equal(t, 3, Width(cyan+"abc"+Reset))
	assert.Equal(t, 2, Width("\r📤"))
	assert.Equal(t, "abc", StripANSI(cyan+"abc"+Reset))
}

func TestTruncateANSI(t *testing.T) {
	got := TruncateANSI(cyan+"abcdef"+Reset, 3)
	assert.Equal(t, "abc", StripANSI(got))
	assert.True(t, strings.HasPrefix(got, cyan))
	assert.True(t, strings.HasSuffix(got, Reset))

	assert.Equal(t, "abc", TruncateANSI("abc", 10))
	assert.Equal(t, "a", TruncateANSI("a📤b", 2), "wide runes are not split")
	assert.Empty(t, TruncateANSI("abc", 0))
}
