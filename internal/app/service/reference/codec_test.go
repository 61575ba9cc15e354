package reference

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/dropship/pkg/tool"
)

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec("ds")
	id := tool.GenerateUUIDV7()

	ref, err := c.Generate(id)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "DS-"))

	got, ok := c.Parse(ref)
	require.True(t, ok)
	require.Equal(t, id, got)

	// providers sometimes lower-case or pad what they echo back
	got, ok = c.Parse("  " + strings.ToLower(ref) + " ")
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestCodec_Unique(t *testing.T) {
	c := NewCodec("")
	id := tool.GenerateUUIDV7()

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := c.Generate(id)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[ref] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 50)
}

func TestCodec_ParseUnrecognized(t *testing.T) {
	c := NewCodec("DS")
	for _, ref := range []string{
		"",
		"ORDER-1234",
		"XX-0190f3a8c0de7a4bb1c2d3e4f5a6b7c8-ABC",
		"DS-nothex-ABC",
		"DS-0190f3a8c0de7a4bb1c2d3e4f5a6b7c8-",
		"DS-0190f3a8-c0de-7a4b-b1c2-d3e4f5a6b7c8-ABC",
	} {
		_, ok := c.Parse(ref)
		require.False(t, ok, ref)
	}
}

func TestCodec_GenerateRejectsNonUUID(t *testing.T) {
	_, err := NewCodec("DS").Generate("42")
	require.Error(t, err)
}
